// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/sonar/pkg/ml/checkpoints"
	"github.com/gomlx/sonar/pkg/ml/nn"
)

// SummaryRows returns one row per property, and one column per checkpoint (after the property name).
func SummaryRows(ckpts []*checkpoints.Checkpoint, paths []string) [][]string {
	newRow := func(name string) []string {
		row := make([]string, len(ckpts)+1)
		row[0] = name
		return row
	}
	epochRow := newRow("epoch")
	bestRow := newRow("best val loss")
	optimizerRow := newRow("optimizer")
	stepRow := newRow("optimizer step")
	varsRow := newRow("# variables")
	paramsRow := newRow("# parameters")
	fileRow := newRow("file size")
	for ii, ckpt := range ckpts {
		col := ii + 1
		epochRow[col] = humanize.Comma(int64(ckpt.Epoch))
		if math.IsInf(ckpt.BestValLoss, 1) {
			bestRow[col] = "-"
		} else {
			bestRow[col] = fmt.Sprintf("%.4f", ckpt.BestValLoss)
		}
		if ckpt.Optimizer != nil {
			optimizerRow[col] = ckpt.Optimizer.Optimizer
			stepRow[col] = humanize.Comma(ckpt.Optimizer.Step)
		}
		varsRow[col] = humanize.Comma(int64(len(ckpt.Variables)))
		paramsRow[col] = humanize.Comma(int64(nn.NumParameters(ckpt.Variables)))
		if info, err := os.Stat(paths[ii]); err == nil {
			fileRow[col] = humanize.Bytes(uint64(info.Size()))
		}
	}
	return [][]string{epochRow, bestRow, optimizerRow, stepRow, varsRow, paramsRow, fileRow}
}

// Summary prints side by side the summary of the checkpoints.
func Summary(ckpts []*checkpoints.Checkpoint, paths []string) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Headers(append([]string{"checkpoint"}, paths...)...)
	for _, row := range SummaryRows(ckpts, paths) {
		table.Row(row...)
	}
	fmt.Println(table.Render())
}
