// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train runs the training of a model: epochs made of a "train" phase, where the model is
// updated batch by batch, followed by a "val" phase, where it is only evaluated.
//
// After each epoch the Trainer appends the average loss, accuracy and macro F1 of each phase to its
// History, and then applies its checkpoint policy:
//
//   - Best: if Config.BestSavePath is set and the average validation loss is strictly lower than the
//     best one so far, the state is saved there.
//   - Periodic: if Config.PeriodicSavePath is set and Config.SavePeriod > 0, the state is saved there
//     every SavePeriod epochs, starting with the first one (epoch 0).
//
// If an OnEpochEnd hook or a checkpoint write fails, the epoch is not counted: its History values are
// dropped and the best validation loss is restored, so Epoch() always matches History.NumEpochs().
//
// Training is synchronous and single-threaded. Progress can be observed with hooks (Trainer.OnBatch,
// Trainer.OnEpochEnd, ...), see package ui/commandline for a progress bar.
package train

import (
	"io"
	"math"
	"time"

	"github.com/gomlx/sonar/pkg/ml/checkpoints"
	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/ml/train/losses"
	"github.com/gomlx/sonar/pkg/ml/train/metrics"
	"github.com/gomlx/sonar/pkg/ml/train/optimizers"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of the training run and of the checkpoint policy.
type Config struct {
	// Epochs to run with Trainer.Run.
	Epochs int `yaml:"epochs"`

	// BestSavePath, if set, is where the state is saved every time the average validation loss improves.
	BestSavePath string `yaml:"best_save_path"`

	// PeriodicSavePath, if set, is where the state is saved every SavePeriod epochs.
	PeriodicSavePath string `yaml:"periodic_save_path"`

	// SavePeriod in epochs for the periodic checkpoint. 0 disables it.
	SavePeriod int `yaml:"save_period"`
}

// Validate returns a failures.ErrConfiguration for contradictory or invalid values.
func (c Config) Validate() error {
	if c.Epochs < 0 {
		return failures.Errorf(failures.KindConfiguration, "number of epochs must be >= 0, got %d", c.Epochs)
	}
	if c.SavePeriod < 0 {
		return failures.Errorf(failures.KindConfiguration, "save period must be >= 0, got %d", c.SavePeriod)
	}
	if c.SavePeriod > 0 && c.PeriodicSavePath == "" {
		return failures.Errorf(failures.KindConfiguration,
			"save period set to %d epochs, but no path was given for the periodic checkpoint", c.SavePeriod)
	}
	return nil
}

// CheckpointKind tells which policy triggered a checkpoint.
type CheckpointKind string

const (
	BestCheckpoint     CheckpointKind = "best"
	PeriodicCheckpoint CheckpointKind = "periodic"
)

// EpochResults holds the metrics of one epoch: phase -> metric type -> value.
type EpochResults map[metrics.Phase]map[string]float64

// Trainer owns a model and its optimizer and runs the training epochs.
//
// It is not safe for concurrent use.
type Trainer struct {
	model     nn.Differentiable
	optimizer optimizers.Interface
	lossFn    losses.LossFn
	config    Config

	// metrics per phase, reset at the start of each phase.
	phaseMetrics map[metrics.Phase][]metrics.Interface

	epoch       int
	bestValLoss float64
	history     metrics.History

	// EpochDurations of the epochs run by this Trainer (not restored from checkpoints).
	EpochDurations []time.Duration

	onStart      *priorityHooks[*hookWithName[OnStartFn]]
	onBatch      *priorityHooks[*hookWithName[OnBatchFn]]
	onEpochEnd   *priorityHooks[*hookWithName[OnEpochEndFn]]
	onCheckpoint *priorityHooks[*hookWithName[OnCheckpointFn]]
	onEnd        *priorityHooks[*hookWithName[OnEndFn]]
}

// NewTrainer creates a trainer for the model and optimizer, using cross-entropy as the loss.
//
// It returns a failures.ErrConfiguration if the model or optimizer are missing, or if config is invalid.
func NewTrainer(model nn.Differentiable, optimizer optimizers.Interface, config Config) (*Trainer, error) {
	if model == nil || optimizer == nil {
		return nil, failures.Errorf(failures.KindConfiguration, "train.NewTrainer() requires a model and an optimizer")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		model:        model,
		optimizer:    optimizer,
		lossFn:       losses.CrossEntropy,
		config:       config,
		bestValLoss:  math.Inf(1),
		history:      metrics.NewHistory(),
		onStart:      newPriorityHooks[*hookWithName[OnStartFn]](),
		onBatch:      newPriorityHooks[*hookWithName[OnBatchFn]](),
		onEpochEnd:   newPriorityHooks[*hookWithName[OnEpochEndFn]](),
		onCheckpoint: newPriorityHooks[*hookWithName[OnCheckpointFn]](),
		onEnd:        newPriorityHooks[*hookWithName[OnEndFn]](),
	}
	t.WithNumClasses(labels.NumClasses)
	return t, nil
}

// WithLoss replaces the loss function, cross-entropy by default.
func (t *Trainer) WithLoss(lossFn losses.LossFn) *Trainer {
	t.lossFn = lossFn
	return t
}

// WithNumClasses sets the number of classes used by the F1 metric. Defaults to labels.NumClasses.
func (t *Trainer) WithNumClasses(numClasses int) *Trainer {
	t.phaseMetrics = make(map[metrics.Phase][]metrics.Interface, len(metrics.Phases))
	for _, phase := range metrics.Phases {
		t.phaseMetrics[phase] = metrics.Defaults(numClasses)
	}
	return t
}

// Model being trained.
func (t *Trainer) Model() nn.Differentiable { return t.model }

// Optimizer used.
func (t *Trainer) Optimizer() optimizers.Interface { return t.optimizer }

// Config returns the trainer configuration.
func (t *Trainer) Config() Config { return t.config }

// Epoch returns the number of completed epochs.
func (t *Trainer) Epoch() int { return t.epoch }

// BestValLoss returns the best average validation loss that triggered a best checkpoint, or +Inf.
func (t *Trainer) BestValLoss() float64 { return t.bestValLoss }

// History returns a copy of the metrics history.
func (t *Trainer) History() metrics.History { return t.history.Clone() }

// Metrics returns the metrics of the phase. They should be treated as read-only.
func (t *Trainer) Metrics(phase metrics.Phase) []metrics.Interface { return t.phaseMetrics[phase] }

// Run the configured number of epochs. See RunEpochs.
func (t *Trainer) Run(trainDS, valDS Dataset) error {
	return t.RunEpochs(trainDS, valDS, t.config.Epochs)
}

// RunEpochs runs numEpochs epochs, each one a pass over trainDS updating the model, and a pass over valDS.
//
// The first error stops the run: History only contains fully completed epochs, and checkpoints on
// disk are those of the last successful writes.
func (t *Trainer) RunEpochs(trainDS, valDS Dataset, numEpochs int) error {
	if trainDS == nil || valDS == nil {
		return failures.Errorf(failures.KindConfiguration, "train.RunEpochs() requires both train and validation datasets")
	}
	for hook := range t.onStart.All() {
		if err := hook.fn(t, numEpochs); err != nil {
			return errors.WithMessagef(err, "OnStart(%q)", hook.name)
		}
	}
	for range numEpochs {
		if err := t.runEpoch(trainDS, valDS); err != nil {
			return errors.WithMessagef(err, "epoch %d", t.epoch)
		}
	}
	for hook := range t.onEnd.All() {
		if err := hook.fn(t); err != nil {
			return errors.WithMessagef(err, "OnEnd(%q)", hook.name)
		}
	}
	return nil
}

func (t *Trainer) runEpoch(trainDS, valDS Dataset) error {
	start := time.Now()
	results := make(EpochResults, len(metrics.Phases))
	var err error
	if results[metrics.PhaseTrain], err = t.runPhase(metrics.PhaseTrain, trainDS); err != nil {
		return err
	}
	if results[metrics.PhaseVal], err = t.runPhase(metrics.PhaseVal, valDS); err != nil {
		return err
	}
	numEpochs, numDurations, prevBest := t.history.NumEpochs(), len(t.EpochDurations), t.bestValLoss
	for _, phase := range metrics.Phases {
		for _, metric := range metrics.HistoryMetrics {
			t.history.Append(phase, metric, results[phase][metric])
		}
	}
	t.EpochDurations = append(t.EpochDurations, time.Since(start))
	if err := t.finishEpoch(results, start); err != nil {
		// The epoch is not completed: History and best loss go back to the start of the epoch.
		t.history.Truncate(numEpochs)
		t.EpochDurations = t.EpochDurations[:numDurations]
		t.bestValLoss = prevBest
		return err
	}
	t.epoch++
	return nil
}

// finishEpoch logs the epoch results, runs the OnEpochEnd hooks and applies the checkpoint policy.
func (t *Trainer) finishEpoch(results EpochResults, start time.Time) error {
	klog.V(1).Infof("epoch %d: train loss=%.4f acc=%.4f f1=%.4f | val loss=%.4f acc=%.4f f1=%.4f (%s)", t.epoch,
		results[metrics.PhaseTrain][metrics.LossMetricType], results[metrics.PhaseTrain][metrics.AccuracyMetricType],
		results[metrics.PhaseTrain][metrics.F1MetricType], results[metrics.PhaseVal][metrics.LossMetricType],
		results[metrics.PhaseVal][metrics.AccuracyMetricType], results[metrics.PhaseVal][metrics.F1MetricType],
		time.Since(start))
	for hook := range t.onEpochEnd.All() {
		if err := hook.fn(t, t.epoch, results); err != nil {
			return errors.WithMessagef(err, "OnEpochEnd(%q)", hook.name)
		}
	}
	return t.applyCheckpointPolicy(results[metrics.PhaseVal][metrics.LossMetricType])
}

// Evaluate runs one pass over ds without updating the model, and returns the value of each metric
// (by metric type). Nothing is appended to the History.
func (t *Trainer) Evaluate(ds Dataset) (map[string]float64, error) {
	if ds == nil {
		return nil, failures.Errorf(failures.KindConfiguration, "train.Evaluate() requires a dataset")
	}
	return t.runPhase(metrics.PhaseVal, ds)
}

// runPhase runs one pass over ds, returning the value of each metric.
func (t *Trainer) runPhase(phase metrics.Phase, ds Dataset) (map[string]float64, error) {
	phaseMetrics := t.phaseMetrics[phase]
	for _, metric := range phaseMetrics {
		metric.Reset()
	}
	ds.Reset()
	var numBatches int
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "%s phase: reading dataset %q", phase, ds.Name())
		}
		loss, predictions, err := t.step(phase, batch)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s phase: batch %d of dataset %q", phase, numBatches, ds.Name())
		}
		result := metrics.BatchResult{Loss: loss, Predictions: predictions, Labels: batch.Labels}
		for _, metric := range phaseMetrics {
			if err := metric.Update(result); err != nil {
				return nil, errors.WithMessagef(err, "%s phase: updating metric %q", phase, metric.Name())
			}
		}
		for hook := range t.onBatch.All() {
			if err := hook.fn(t, phase, numBatches, loss); err != nil {
				return nil, errors.WithMessagef(err, "OnBatch(%q)", hook.name)
			}
		}
		numBatches++
	}
	if numBatches == 0 {
		return nil, failures.Errorf(failures.KindDataFormat, "%s phase: dataset %q yielded no batches", phase, ds.Name())
	}
	values := make(map[string]float64, len(phaseMetrics))
	for _, metric := range phaseMetrics {
		values[metric.MetricType()] = metric.Value()
	}
	return values, nil
}

// step evaluates one batch and, in the train phase, updates the model.
func (t *Trainer) step(phase metrics.Phase, batch Batch) (loss float64, predictions []int, err error) {
	if err = batch.Validate(); err != nil {
		return
	}
	trace, err := t.model.ForwardTrace(batch.Features)
	if err != nil {
		return
	}
	output := trace.Output()
	loss, lossGrad, err := t.lossFn(output, batch.Labels)
	if err != nil {
		return
	}
	if !losses.IsFinite(loss) {
		err = errors.Errorf("batch loss is %g, training interrupted", loss)
		return
	}
	if phase == metrics.PhaseTrain {
		var grads nn.Gradients
		grads, err = t.model.Backward(trace, lossGrad)
		if err != nil {
			return
		}
		if err = t.optimizer.Step(t.model.Variables(), grads); err != nil {
			return
		}
	}
	predictions = nn.Argmax(output)
	klog.V(3).Infof("%s batch: size=%d loss=%.6f", phase, batch.Size(), loss)
	return
}

// applyCheckpointPolicy runs after the validation phase of the current epoch.
func (t *Trainer) applyCheckpointPolicy(valLoss float64) error {
	if t.config.BestSavePath != "" && valLoss < t.bestValLoss {
		t.bestValLoss = valLoss
		if err := t.saveFromPolicy(BestCheckpoint, t.config.BestSavePath); err != nil {
			return err
		}
	}
	if t.config.PeriodicSavePath != "" && t.config.SavePeriod > 0 && t.epoch%t.config.SavePeriod == 0 {
		if err := t.saveFromPolicy(PeriodicCheckpoint, t.config.PeriodicSavePath); err != nil {
			return err
		}
	}
	return nil
}

// saveFromPolicy saves the state as of the end of the current epoch, so the checkpoint records it
// as completed.
func (t *Trainer) saveFromPolicy(kind CheckpointKind, path string) error {
	if err := checkpoints.Save(path, t.snapshot(t.epoch+1)); err != nil {
		return errors.WithMessagef(err, "saving %s checkpoint", kind)
	}
	klog.Infof("epoch %d: saved %s checkpoint to %q (best validation loss %.4f)", t.epoch, kind, path, t.bestValLoss)
	for hook := range t.onCheckpoint.All() {
		if err := hook.fn(t, kind, path); err != nil {
			return errors.WithMessagef(err, "OnCheckpoint(%q)", hook.name)
		}
	}
	return nil
}

func (t *Trainer) snapshot(epoch int) *checkpoints.Checkpoint {
	return &checkpoints.Checkpoint{
		Epoch:       epoch,
		BestValLoss: t.bestValLoss,
		Variables:   nn.CloneVariables(t.model.Variables()),
		Optimizer:   t.optimizer.State(),
		History:     t.history.Clone(),
	}
}

// Save the trainer state (epoch, best validation loss, model variables, optimizer state and history)
// to path, overwriting it. Errors are failures.ErrIO.
func (t *Trainer) Save(path string) error {
	return checkpoints.Save(path, t.snapshot(t.epoch))
}

// Load replaces the trainer state with the one saved in path.
//
// Either everything is restored or nothing changes. The model variables' shapes are not checked
// against the model configuration: a mismatch is reported as a failures.ErrShapeMismatch on the next
// evaluation of the model.
func (t *Trainer) Load(path string) error {
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return err
	}
	previousVars := t.model.Variables()
	if err := t.model.SetVariables(ckpt.Variables); err != nil {
		return failures.Wrapf(failures.KindIO, err, "loading %q into the model", path)
	}
	if err := t.optimizer.SetState(ckpt.Optimizer); err != nil {
		if rollbackErr := t.model.SetVariables(previousVars); rollbackErr != nil {
			klog.Errorf("failed to restore model variables after failed load: %+v", rollbackErr)
		}
		return failures.Wrapf(failures.KindIO, err, "loading %q into the optimizer", path)
	}
	t.epoch = ckpt.Epoch
	t.bestValLoss = ckpt.BestValLoss
	t.history = ckpt.History.Clone()
	klog.V(1).Infof("restored trainer from %q: epoch=%d, optimizer step=%d", path, t.epoch, ckpt.Optimizer.Step)
	return nil
}
