// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/sonar/pkg/ml/train"
	"github.com/gomlx/sonar/pkg/ml/train/metrics"
)

// ReportEval reports on the command line the results of evaluating the datasets using trainer.Evaluate.
func ReportEval(trainer *train.Trainer, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		fmt.Printf("Results on %s:\n", ds.Name())
		values, err := trainer.Evaluate(ds)
		if err != nil {
			return err
		}
		for _, metric := range trainer.Metrics(metrics.PhaseVal) {
			value := values[metric.MetricType()]
			fmt.Printf("\t%s (%s): %s\n", metric.Name(), metric.ShortName(), metric.PrettyPrint(value))
		}
	}
	return nil
}

// historyHeaders returns the header of the history table: "epoch", then "<phase> <metric>" for each
// phase and metric.
func historyHeaders() []string {
	headers := []string{"epoch"}
	for _, phase := range metrics.Phases {
		for _, metric := range metrics.HistoryMetrics {
			headers = append(headers, fmt.Sprintf("%s %s", phase, metric))
		}
	}
	return headers
}

// HistoryRows returns the history as rows of strings, one per epoch, in the order of historyHeaders.
func HistoryRows(history metrics.History) [][]string {
	numEpochs := history.NumEpochs()
	rows := make([][]string, numEpochs)
	for epoch := range numEpochs {
		row := []string{strconv.Itoa(epoch)}
		for _, phase := range metrics.Phases {
			for _, metric := range metrics.HistoryMetrics {
				values := history.Get(phase, metric)
				cell := "-"
				if epoch < len(values) {
					cell = fmt.Sprintf("%.4f", values[epoch])
				}
				row = append(row, cell)
			}
		}
		rows[epoch] = row
	}
	return rows
}

// SprintHistory renders the history as a table, one row per epoch.
func SprintHistory(history metrics.History) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 || row == lgtable.HeaderRow {
				return normalStyle
			}
			return rightAlignedStyle
		}).
		Headers(historyHeaders()...).
		Rows(HistoryRows(history)...)
	return table.String()
}

// ReportHistory prints the history table to stdout.
func ReportHistory(history metrics.History) {
	fmt.Println(SprintHistory(history))
}
