// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"iter"
	"sort"

	"github.com/gomlx/sonar/pkg/ml/train/metrics"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks: called at the start of Trainer.RunEpochs.
type OnStartFn func(trainer *Trainer, numEpochs int) error

// OnBatchFn is the type of OnBatch hooks: called after each batch, in either phase.
type OnBatchFn func(trainer *Trainer, phase metrics.Phase, batch int, loss float64) error

// OnEpochEndFn is the type of OnEpochEnd hooks: called after both phases of an epoch completed and
// their results were appended to the History, before the checkpoint policy runs.
type OnEpochEndFn func(trainer *Trainer, epoch int, results EpochResults) error

// OnCheckpointFn is the type of OnCheckpoint hooks: called after a checkpoint is written by the
// checkpoint policy.
type OnCheckpointFn func(trainer *Trainer, kind CheckpointKind, path string) error

// OnEndFn is the type of OnEnd hooks: called when Trainer.RunEpochs finishes without errors.
type OnEndFn func(trainer *Trainer) error

// OnStart adds a hook with given priority and name (for error reporting) to the start of a run.
func (t *Trainer) OnStart(name string, priority Priority, fn OnStartFn) {
	t.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnBatch adds a hook with given priority and name (for error reporting), called after each batch.
func (t *Trainer) OnBatch(name string, priority Priority, fn OnBatchFn) {
	t.onBatch.Add(priority, &hookWithName[OnBatchFn]{name: name, fn: fn})
}

// OnEpochEnd adds a hook with given priority and name (for error reporting), called after each epoch.
func (t *Trainer) OnEpochEnd(name string, priority Priority, fn OnEpochEndFn) {
	t.onEpochEnd.Add(priority, &hookWithName[OnEpochEndFn]{name: name, fn: fn})
}

// OnCheckpoint adds a hook with given priority and name (for error reporting), called after each
// checkpoint written by the checkpoint policy.
func (t *Trainer) OnCheckpoint(name string, priority Priority, fn OnCheckpointFn) {
	t.onCheckpoint.Add(priority, &hookWithName[OnCheckpointFn]{name: name, fn: fn})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a run.
func (t *Trainer) OnEnd(name string, priority Priority, fn OnEndFn) {
	t.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order. Hooks with the same
// priority are run in the order they were added.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
