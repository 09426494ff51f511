// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Phase of an epoch.
type Phase string

const (
	// PhaseTrain is the phase where the model is updated.
	PhaseTrain Phase = "train"

	// PhaseVal is the validation phase: the model is only evaluated.
	PhaseVal Phase = "val"
)

// Phases in the order they are run in each epoch.
var Phases = []Phase{PhaseTrain, PhaseVal}

// HistoryMetrics are the metric types recorded in History for each phase, in display order.
var HistoryMetrics = []string{LossMetricType, AccuracyMetricType, F1MetricType}

// History of metric values: phase -> metric type -> one value per completed epoch.
type History map[Phase]map[string][]float64

// NewHistory returns an empty History with all phases and metrics present.
func NewHistory() History {
	h := make(History, len(Phases))
	for _, phase := range Phases {
		h[phase] = make(map[string][]float64, len(HistoryMetrics))
		for _, metric := range HistoryMetrics {
			h[phase][metric] = []float64{}
		}
	}
	return h
}

// Append value to the sequence of the given phase and metric.
func (h History) Append(phase Phase, metric string, value float64) {
	perMetric, found := h[phase]
	if !found {
		perMetric = make(map[string][]float64)
		h[phase] = perMetric
	}
	perMetric[metric] = append(perMetric[metric], value)
}

// Get returns the values of the metric for the phase (nil if not present).
func (h History) Get(phase Phase, metric string) []float64 {
	return h[phase][metric]
}

// Last returns the latest value of the metric for the phase, and whether there is one.
func (h History) Last(phase Phase, metric string) (float64, bool) {
	values := h.Get(phase, metric)
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// NumEpochs returns the number of epochs recorded, the length of the train loss sequence.
func (h History) NumEpochs() int {
	return len(h.Get(PhaseTrain, LossMetricType))
}

// Truncate drops the values of every sequence beyond the first numEpochs.
func (h History) Truncate(numEpochs int) {
	numEpochs = max(numEpochs, 0)
	for _, perMetric := range h {
		for metric, values := range perMetric {
			if len(values) > numEpochs {
				perMetric[metric] = values[:numEpochs]
			}
		}
	}
}

// Validate checks that every sequence has the same length.
func (h History) Validate() error {
	n := h.NumEpochs()
	phases := maps.Keys(h)
	slices.Sort(phases)
	for _, phase := range phases {
		perMetric := h[phase]
		metricTypes := maps.Keys(perMetric)
		slices.Sort(metricTypes)
		for _, metric := range metricTypes {
			if len(perMetric[metric]) != n {
				return errors.Errorf("history[%q][%q] has %d values, expected %d", phase, metric, len(perMetric[metric]), n)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the history.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	c := make(History, len(h))
	for phase, perMetric := range h {
		c[phase] = make(map[string][]float64, len(perMetric))
		for metric, values := range perMetric {
			c[phase][metric] = slices.Clone(values)
		}
	}
	return c
}
