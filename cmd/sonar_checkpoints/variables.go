// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/sonar/pkg/ml/checkpoints"
	"github.com/gomlx/sonar/pkg/ml/initializer"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"gonum.org/v1/gonum/floats"
)

var (
	flagVars        = flag.Bool("vars", false, "Lists the model variables, with their shapes and statistics.")
	flagOptimizer   = flag.Bool("optimizer", false, "Include the optimizer slots (e.g.: Adam moments) in the -vars listing.")
	flagPerturbVars = flag.Float64("perturb", 0,
		"Perturbs the model variables by <x>: it multiplies the weights by 1.0+(RandomUniform(-1, 1)*x). "+
			"If using the Adam optimizer remember to clear its moving averages with -clear_optimizer.")
	flagPerturbSeed    = flag.Uint64("perturb_seed", 0, "Seed used to generate the -perturb values.")
	flagClearOptimizer = flag.Bool("clear_optimizer", false,
		"Resets the optimizer state (step and slots) in the checkpoint, keeping the model variables.")
)

// VariableStats are the MAV (mean absolute value), RMS (root-mean-square) and MaxAV (max absolute value)
// of the values of a variable.
func VariableStats(v *nn.Variable) (mav, rms, maxAV float64) {
	if v.Size() == 0 {
		return
	}
	values := v.Value.RawMatrix().Data
	if v.Value.RawMatrix().Stride != v.Value.RawMatrix().Cols {
		values = nil
		rows, cols := v.Value.Dims()
		for row := range rows {
			values = append(values, v.Value.RawRowView(row)[:cols]...)
		}
	}
	n := float64(len(values))
	mav = floats.Norm(values, 1) / n
	rms = floats.Norm(values, 2) / math.Sqrt(n)
	maxAV = floats.Norm(values, math.Inf(1))
	return
}

// VariableRows lists name, shape, size, bytes, MAV, RMS and MaxAV for each variable.
func VariableRows(vars []*nn.Variable) [][]string {
	rows := make([][]string, 0, len(vars))
	for _, v := range vars {
		dims := v.Dims()
		mav, rms, maxAV := VariableStats(v)
		rows = append(rows, []string{
			v.Name, fmt.Sprintf("(%d, %d)", dims[0], dims[1]),
			humanize.Comma(int64(v.Size())),
			humanize.Bytes(uint64(8 * v.Size())),
			fmt.Sprintf("%.3g", mav), fmt.Sprintf("%.3g", rms), fmt.Sprintf("%.3g", maxAV),
		})
	}
	return rows
}

// ListVariables of the model (and optionally of the optimizer) saved in ckpt.
func ListVariables(ckpt *checkpoints.Checkpoint, path string) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Variables in %q", path)))
	table := newPlainTable()
	table.Headers("Name", "Shape", "Size", "Bytes", "MAV", "RMS", "MaxAV")
	vars := ckpt.Variables
	if *flagOptimizer && ckpt.Optimizer != nil {
		vars = append(vars[:len(vars):len(vars)], ckpt.Optimizer.Slots...)
	}
	for _, row := range VariableRows(vars) {
		table.Row(row...)
	}
	fmt.Println(table.Render())
	if *flagGlossary {
		fmt.Printf("  %s:\n", sectionStyle.Render("Glossary"))
		fmt.Printf("   ◦ %s: %s\n", emphasisStyle.Render("MAV"), italicStyle.Render("Mean Absolute Value"))
		fmt.Printf("   ◦ %s: %s\n", emphasisStyle.Render("RMS"), italicStyle.Render("Root Mean Square"))
		fmt.Printf("   ◦ %s: %s\n", emphasisStyle.Render("MaxAV"), italicStyle.Render("Max Absolute Value"))
	}
}

// PerturbVars multiplies every model variable value by 1+U(-x, x), and saves the checkpoint back to path.
func PerturbVars(path string, x float64, seed uint64) error {
	if x <= 0 || x >= 1 {
		return failures.Errorf(failures.KindConfiguration, "perturbation must be in (0, 1), got %g", x)
	}
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return err
	}
	rng := initializer.NewRNG(seed)
	for _, v := range ckpt.Variables {
		v.Value.Apply(func(_, _ int, value float64) float64 {
			return value * (1 + x*(2*rng.Float64()-1))
		}, v.Value)
	}
	if err := checkpoints.Save(path, ckpt); err != nil {
		return err
	}
	fmt.Printf("%d variables perturbed by up to %g, checkpoint %q saved.\n", len(ckpt.Variables), x, path)
	return nil
}

// ClearOptimizer resets the optimizer step and slots saved in path.
func ClearOptimizer(path string) error {
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return err
	}
	numSlots := len(ckpt.Optimizer.Slots)
	ckpt.Optimizer.Step = 0
	ckpt.Optimizer.Slots = nil
	if err := checkpoints.Save(path, ckpt); err != nil {
		return err
	}
	fmt.Printf("%d optimizer slots deleted, checkpoint %q saved.\n", numSlots, path)
	return nil
}
