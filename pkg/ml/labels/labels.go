// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package labels defines the closed set of classes of the sonar returns and their mapping to
// the symbols used in the data files and to model output indices.
//
// The mapping is shared by training, evaluation and scoring: a Label value is also the index of
// the corresponding model output column.
package labels

import (
	"github.com/gomlx/sonar/pkg/support/failures"
)

// Label of a sonar return.
type Label int

const (
	// Rock is a sonar return bounced off a roughly cylindrical rock. Symbol "R".
	Rock Label = iota

	// Mine is a sonar return bounced off a metal cylinder. Symbol "M". It is the positive class.
	Mine
)

// NumClasses is the number of labels, and the number of model outputs.
const NumClasses = 2

// Positive is the class whose probability is reported when scoring.
const Positive = Mine

var symbols = [NumClasses]string{Rock: "R", Mine: "M"}

// String returns the symbol of the label, as used in the data files.
func (l Label) String() string {
	if !l.IsValid() {
		return "Label(?)"
	}
	return symbols[l]
}

// Name returns a human-readable name for the label.
func (l Label) Name() string {
	switch l {
	case Rock:
		return "rock"
	case Mine:
		return "mine"
	default:
		return "invalid"
	}
}

// IsValid returns whether l is one of the known labels.
func (l Label) IsValid() bool {
	return l >= 0 && int(l) < NumClasses
}

// Index of the label, to be used as the target of the loss.
func (l Label) Index() int { return int(l) }

// Parse a label symbol ("R" or "M"). Anything else is a failures.ErrDataFormat.
func Parse(symbol string) (Label, error) {
	for ii, s := range symbols {
		if s == symbol {
			return Label(ii), nil
		}
	}
	return 0, failures.Errorf(failures.KindDataFormat, "unknown label symbol %q, valid symbols are %q", symbol, symbols)
}

// ParseAll parses the symbols into labels, failing on the first invalid one.
func ParseAll(symbols []string) ([]Label, error) {
	ls := make([]Label, len(symbols))
	for ii, s := range symbols {
		var err error
		ls[ii], err = Parse(s)
		if err != nil {
			return nil, failures.Wrapf(failures.KindDataFormat, err, "label #%d", ii)
		}
	}
	return ls, nil
}

// FromIndex converts a class index (e.g. the argmax of a model output) to a Label.
func FromIndex(idx int) (Label, error) {
	l := Label(idx)
	if !l.IsValid() {
		return 0, failures.Errorf(failures.KindDataFormat, "class index %d out of range [0, %d)", idx, NumClasses)
	}
	return l, nil
}

// Indices converts labels to class indices.
func Indices(ls []Label) []int {
	indices := make([]int, len(ls))
	for ii, l := range ls {
		indices[ii] = l.Index()
	}
	return indices
}

// Values returns all labels in index order.
func Values() []Label {
	return []Label{Rock, Mine}
}

// MarshalText implements encoding.TextMarshaler, using the label symbol.
func (l Label) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, failures.Errorf(failures.KindDataFormat, "invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, using Parse.
func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
