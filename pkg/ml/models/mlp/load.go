// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mlp

import (
	"github.com/gomlx/sonar/pkg/ml/checkpoints"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Load creates a model with the given configuration and the variables of the checkpoint in path,
// for inference.
//
// Unlike SetVariables, the variable shapes are checked against the configuration, so a mismatch
// is reported here as a failures.ErrShapeMismatch.
func Load(config Config, path string) (*Model, error) {
	m, err := New(config, 0)
	if err != nil {
		return nil, err
	}
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	if err := m.SetVariables(ckpt.Variables); err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %q", path)
	}
	if err := m.checkVariables(); err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %q doesn't match the model configuration", path)
	}
	klog.V(1).Infof("loaded model from %q, trained for %d epochs", path, ckpt.Epoch)
	return m, nil
}
