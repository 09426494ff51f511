// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/sonar/pkg/ml/train"
	"github.com/gomlx/sonar/pkg/ml/train/metrics"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// progressBar holds a progressbar being displayed.
type progressBar struct {
	numEpochs   int
	startEpoch  int
	bar         *progressbar.ProgressBar
	suffix      string
	plain       bool
	out         io.Writer
	numBatches  int
	lastLoss    float64
	totalAmount int

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// Write implements io.Writer, and appends the current suffix with metrics to each
// line. It is meant to be used as the default writer for the enclosed progressbar.ProgressBar.
// This ensures that the progress bar and its suffix are written in the same write operation.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	n, err = pBar.out.Write(data)
	if err != nil {
		return n, err
	}
	_, err = pBar.out.Write([]byte(pBar.suffix))
	if err != nil {
		return 0, err
	}
	return
}

func (pBar *progressBar) onStart(trainer *train.Trainer, numEpochs int) error {
	pBar.numEpochs = numEpochs
	pBar.startEpoch = trainer.Epoch()
	pBar.bar = progressbar.NewOptions(numEpochs,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(!pBar.plain),
		progressbar.OptionEnableColorCodes(!pBar.plain),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("epochs"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar),
	)
	return nil
}

func (pBar *progressBar) onBatch(_ *train.Trainer, phase metrics.Phase, _ int, loss float64) error {
	if phase == metrics.PhaseTrain {
		pBar.numBatches++
		pBar.lastLoss = loss
	}
	return nil
}

func (pBar *progressBar) onEpochEnd(trainer *train.Trainer, epoch int, results train.EpochResults) error {
	if pBar.bar.IsFinished() {
		return nil
	}
	update := progressBarUpdate{
		amount:   1,
		epoch:    fmt.Sprintf("%s of %s", humanize.Comma(int64(epoch+1)), humanize.Comma(int64(pBar.startEpoch+pBar.numEpochs))),
		batches:  humanize.Comma(int64(pBar.numBatches)),
		lastLoss: fmt.Sprintf("%.4f", pBar.lastLoss),
	}
	for _, phase := range metrics.Phases {
		for _, metric := range trainer.Metrics(phase) {
			update.metrics = append(update.metrics, metricValue{
				name:  fmt.Sprintf("%s (%s)", metric.Name(), phase),
				short: fmt.Sprintf("%s_%s", phase, metric.ShortName()),
				value: metric.PrettyPrint(results[phase][metric.MetricType()]),
			})
		}
	}
	update.medianEpoch = FormatDuration(median(trainer.EpochDurations))
	pBar.totalAmount++

	if pBar.plain {
		// Without a terminal, a suffix is written along with the progressbar in [progressBar.Write].
		parts := make([]string, 0, len(update.metrics)+1)
		parts = append(parts, fmt.Sprintf(" [epoch=%d]", epoch))
		for _, m := range update.metrics {
			parts = append(parts, fmt.Sprintf(" [%s=%s]", m.short, m.value))
		}
		pBar.suffix = strings.Join(parts, "") + "\n"
		_ = pBar.bar.Add(update.amount)
		return nil
	}
	pBar.suffix = "\033[J"
	pBar.updates <- update
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Trainer) error {
	pBar.finish()
	return nil
}

// finish waits for the pending updates to be displayed. It is safe to call more than once.
func (pBar *progressBar) finish() {
	if pBar.updates != nil {
		close(pBar.updates)
		pBar.updates = nil
	}
	pBar.asyncUpdatesDone.Wait()
	if pBar.termenv != nil {
		pBar.termenv.ShowCursor()
	}
	_, _ = fmt.Fprintln(pBar.out)
}

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "sonar.ui.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

type metricValue struct {
	name, short, value string
}

type progressBarUpdate struct {
	amount      int
	epoch       string
	batches     string
	lastLoss    string
	medianEpoch string
	metrics     []metricValue
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// AttachProgressBar creates a commandline progress bar and attaches it to the Trainer, so that
// everytime it runs, it will display a progress bar over the epochs, with the metrics of the
// last epoch.
//
// If stdout is not a terminal, a plain line per epoch is printed instead.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
//
// It returns a function that stops the display: it should be called (typically deferred) if the
// training may fail, since in that case the OnEnd hook is not called.
func AttachProgressBar(trainer *train.Trainer, extraMetrics ...ExtraMetricFn) (stop func()) {
	output := termenv.NewOutput(os.Stdout)
	pBar := &progressBar{
		plain:          output.Profile == termenv.Ascii,
		out:            os.Stdout,
		extraMetricFns: extraMetrics,
	}
	if !pBar.plain {
		pBar.isFirstOutput = true
		pBar.termenv = output
		pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
		pBar.statsTable = lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return rightAlignedStyle
				}
				return normalStyle
			})
		pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
		pBar.asyncUpdatesDone.Add(1)
		go pBar.drawUpdates(pBar.updates)
	}
	return pBar.attach(trainer)
}

func (pBar *progressBar) attach(trainer *train.Trainer) (stop func()) {
	trainer.OnStart(ProgressBarName, 0, pBar.onStart)
	trainer.OnBatch(ProgressBarName, 0, pBar.onBatch)
	trainer.OnEpochEnd(ProgressBarName, 0, pBar.onEpochEnd)
	trainer.OnEnd(ProgressBarName, 0, pBar.onEnd)
	var once sync.Once
	return func() { once.Do(pBar.finish) }
}

// drawUpdates asynchronously draws updates: this is handy if the training is faster than the terminal.
func (pBar *progressBar) drawUpdates(updates <-chan progressBarUpdate) {
	defer pBar.asyncUpdatesDone.Done()
	for update := range updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		// Create the table to be printed.
		pBar.statsTable.Data(lgtable.NewStringData())
		pBar.statsTable.Row("Epoch", update.epoch)
		pBar.statsTable.Row("Train batches", update.batches)
		pBar.statsTable.Row("Last train batch loss", update.lastLoss)
		pBar.statsTable.Row("Median epoch duration", update.medianEpoch)
		for _, m := range update.metrics {
			pBar.statsTable.Row(m.name, m.value)
		}
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
		}

		// For command-line, we clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := 4 + len(update.metrics) + 2 + 1 + len(pBar.extraMetricFns)
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		// Print update.
		_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(pBar.out)
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// median of the durations, or 0 if there are none.
func median(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
