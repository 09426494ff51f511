// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package failures defines the error kinds reported by the training stack.
//
// Every error returned by the model, loss, optimizer, checkpoint and trainer packages that
// belongs to one of the kinds below can be matched with errors.Is against the corresponding
// sentinel:
//
//	if errors.Is(err, failures.ErrShapeMismatch) { ... }
//
// Errors are created with github.com/pkg/errors, so printing them with "%+v" includes the
// stack trace of where they were created.
package failures

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind of failure.
type Kind int

//go:generate go tool enumer -type Kind -trimprefix=Kind -transform=snake -output=gen_kind_enumer.go failures.go

const (
	KindUnknown Kind = iota

	// KindConfiguration is returned when construction parameters are contradictory or missing.
	KindConfiguration

	// KindDataFormat is returned for malformed batches, unknown label symbols or out-of-range labels.
	KindDataFormat

	// KindShapeMismatch is returned when parameters or inputs don't match the configured shapes.
	KindShapeMismatch

	// KindIO is returned when a checkpoint can't be written, read or decoded.
	KindIO
)

// Error is an error tagged with a Kind.
type Error struct {
	Kind Kind
	err  error
}

// Sentinels to be used with errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrDataFormat    = &Error{Kind: KindDataFormat}
	ErrShapeMismatch = &Error{Kind: KindShapeMismatch}
	ErrIO            = &Error{Kind: KindIO}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s failure", e.Kind)
	}
	return fmt.Sprintf("%s failure: %s", e.Kind, e.err.Error())
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.err }

// Is matches any *Error of the same Kind, so the sentinels match errors created with Errorf or Wrapf.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Format implements fmt.Formatter: "%+v" includes the stack trace of the underlying error.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.err != nil {
			_, _ = fmt.Fprintf(s, "%s failure: %+v", e.Kind, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// Errorf creates a new error of the given kind, with a stack trace.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// Wrapf tags err with the given kind and adds the message and a stack trace.
// It returns nil if err is nil.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
