// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mlp

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/gomlx/sonar/pkg/ml/checkpoints"
	"github.com/gomlx/sonar/pkg/ml/layers/activations"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/ml/train/optimizers"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLoad(t *testing.T) {
	config := Config{InputSize: 3, HiddenSize: 4, OutputSize: 2, OutputActivation: activations.TypeSigmoid}
	original := MustNew(config, 17)
	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, checkpoints.Save(path, &checkpoints.Checkpoint{
		Epoch:       3,
		BestValLoss: math.Inf(1),
		Variables:   nn.CloneVariables(original.Variables()),
		Optimizer:   optimizers.Adam().Done().State(),
	}))

	loaded, err := Load(config, path)
	require.NoError(t, err)
	x := mat.NewDense(2, 3, []float64{0.1, 0.2, 0.3, -1, 0, 1})
	want, err := original.Forward(x)
	require.NoError(t, err)
	got, err := loaded.Forward(x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	// Configuration doesn't match the checkpoint.
	config.HiddenSize = 5
	_, err = Load(config, path)
	assert.ErrorIs(t, err, failures.ErrShapeMismatch)

	_, err = Load(config, filepath.Join(t.TempDir(), "missing.ckpt"))
	assert.ErrorIs(t, err, failures.ErrIO)
}
