// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoints saves and loads the training state: the epoch counter, the best validation loss
// seen so far, the model variables, the optimizer state and the metrics History.
//
// A checkpoint is a single file, written atomically (to a temporary file that is renamed over the
// target), so readers never see a partially written checkpoint. Its format:
//
//	| "sonar_checkpoint" | len(uint8) | "gzip" | gzip stream ... |
//
// The gzip stream holds a big-endian uint64 with the length of the JSON metadata, the JSON metadata
// (see serializedCheckpoint) and then the values of all variables and optimizer slots, as
// little-endian float64, at the positions listed in the metadata.
//
// Load either returns a complete, validated Checkpoint or an error: any truncation or
// corruption is reported as a failures.ErrIO.
package checkpoints

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/ml/train/metrics"
	"github.com/gomlx/sonar/pkg/ml/train/optimizers"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Checkpoint is a point-in-time copy of the training state.
type Checkpoint struct {
	// Epoch is the number of completed epochs.
	Epoch int

	// BestValLoss is the best average validation loss so far, +Inf if none.
	BestValLoss float64

	// Variables of the model.
	Variables []*nn.Variable

	// Optimizer state, including its step counter.
	Optimizer *optimizers.State

	// History of the metrics, one value per completed epoch.
	History metrics.History
}

const (
	binHeader     = "sonar_checkpoint"
	gzipHeader    = "gzip"
	lenGzipHeader = uint8(len(gzipHeader))

	// FormatVersion of the checkpoint files written by Save.
	FormatVersion = 1

	bytesPerValue = 8
)

type serializedVar struct {
	Name       string `json:"name"`
	Dimensions []int  `json:"dimensions"`
	Pos        int    `json:"pos"`
	Length     int    `json:"length"`
}

type serializedCheckpoint struct {
	Version        int             `json:"version"`
	Epoch          int             `json:"epoch"`
	BestValLoss    *float64        `json:"best_val_loss,omitempty"`
	Optimizer      string          `json:"optimizer"`
	OptimizerStep  int64           `json:"optimizer_step"`
	Variables      []serializedVar `json:"variables"`
	OptimizerSlots []serializedVar `json:"optimizer_slots"`
	History        metrics.History `json:"history"`
}

// Save writes the checkpoint to filePath, replacing any previous file. Errors are failures.ErrIO.
func Save(filePath string, ckpt *Checkpoint) error {
	if ckpt == nil || ckpt.Optimizer == nil {
		return errors.Errorf("checkpoints.Save(%q): checkpoint and its optimizer state must be set", filePath)
	}
	serialized := serializedCheckpoint{
		Version:       FormatVersion,
		Epoch:         ckpt.Epoch,
		Optimizer:     ckpt.Optimizer.Optimizer,
		OptimizerStep: ckpt.Optimizer.Step,
		History:       ckpt.History,
	}
	if !math.IsInf(ckpt.BestValLoss, 1) {
		best := ckpt.BestValLoss
		serialized.BestValLoss = &best
	}
	if serialized.History == nil {
		serialized.History = metrics.NewHistory()
	}

	var data bytes.Buffer
	var pos int
	appendVars := func(vars []*nn.Variable) ([]serializedVar, error) {
		list := make([]serializedVar, 0, len(vars))
		for _, v := range vars {
			if v == nil || v.Value == nil || v.Value.IsEmpty() {
				return nil, errors.Errorf("variable %v has no value", v)
			}
			rows, cols := v.Value.Dims()
			var buf [bytesPerValue]byte
			for row := range rows {
				for _, value := range v.Value.RawRowView(row)[:cols] {
					binary.LittleEndian.PutUint64(buf[:], math.Float64bits(value))
					data.Write(buf[:])
				}
			}
			length := rows * cols * bytesPerValue
			list = append(list, serializedVar{Name: v.Name, Dimensions: []int{rows, cols}, Pos: pos, Length: length})
			pos += length
		}
		return list, nil
	}
	var err error
	if serialized.Variables, err = appendVars(ckpt.Variables); err != nil {
		return failures.Wrapf(failures.KindIO, err, "checkpoints.Save(%q)", filePath)
	}
	if serialized.OptimizerSlots, err = appendVars(ckpt.Optimizer.Slots); err != nil {
		return failures.Wrapf(failures.KindIO, err, "checkpoints.Save(%q)", filePath)
	}
	metadata, err := json.Marshal(&serialized)
	if err != nil {
		return failures.Wrapf(failures.KindIO, err, "checkpoints.Save(%q): failed to encode metadata", filePath)
	}

	err = fsutil.WriteFileAtomic(filePath, 0o644, func(f *os.File) error {
		w := bufio.NewWriter(f)
		header := make([]byte, 0, len(binHeader)+1+len(gzipHeader))
		header = append(header, binHeader...)
		header = append(header, lenGzipHeader)
		header = append(header, gzipHeader...)
		if _, err := w.Write(header); err != nil {
			return errors.Wrap(err, "write header")
		}
		zw := gzip.NewWriter(w)
		if err := binary.Write(zw, binary.BigEndian, uint64(len(metadata))); err != nil {
			return errors.Wrap(err, "write metadata length")
		}
		if _, err := zw.Write(metadata); err != nil {
			return errors.Wrap(err, "write metadata")
		}
		if _, err := zw.Write(data.Bytes()); err != nil {
			return errors.Wrap(err, "write variables")
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "close gzip stream")
		}
		return w.Flush()
	})
	if err != nil {
		return failures.Wrapf(failures.KindIO, err, "checkpoints.Save(%q)", filePath)
	}
	klog.V(1).Infof("saved checkpoint %q: epoch=%d, %d variables, optimizer %s at step %d",
		filePath, ckpt.Epoch, len(ckpt.Variables), ckpt.Optimizer.Optimizer, ckpt.Optimizer.Step)
	return nil
}

// Load reads and validates the checkpoint in filePath. Any error is a failures.ErrIO.
//
// Variable dimensions are not compared with any model here.
func Load(filePath string) (*Checkpoint, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "checkpoints.Load(%q)", filePath)
	}
	ckpt, err := decode(contents)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "checkpoints.Load(%q): invalid checkpoint", filePath)
	}
	klog.V(1).Infof("loaded checkpoint %q: epoch=%d", filePath, ckpt.Epoch)
	return ckpt, nil
}

func decode(contents []byte) (*Checkpoint, error) {
	headerLen := len(binHeader) + 1 + len(gzipHeader)
	if len(contents) < headerLen || string(contents[:len(binHeader)]) != binHeader {
		return nil, errors.New("missing checkpoint header")
	}
	if contents[len(binHeader)] != lenGzipHeader || string(contents[len(binHeader)+1:headerLen]) != gzipHeader {
		return nil, errors.New("unsupported compression")
	}
	zr, err := gzip.NewReader(bytes.NewReader(contents[headerLen:]))
	if err != nil {
		return nil, errors.Wrap(err, "read gzip header")
	}
	defer func() { _ = zr.Close() }()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "read gzip stream")
	}
	if len(payload) < 8 {
		return nil, errors.New("truncated metadata length")
	}
	metadataLen := binary.BigEndian.Uint64(payload[:8])
	payload = payload[8:]
	if metadataLen > uint64(len(payload)) {
		return nil, errors.Errorf("metadata length %d larger than the %d bytes available", metadataLen, len(payload))
	}
	var serialized serializedCheckpoint
	if err := json.Unmarshal(payload[:metadataLen], &serialized); err != nil {
		return nil, errors.Wrap(err, "decode metadata")
	}
	data := payload[metadataLen:]
	if serialized.Version != FormatVersion {
		return nil, errors.Errorf("unsupported checkpoint version %d", serialized.Version)
	}
	if serialized.Epoch < 0 || serialized.OptimizerStep < 0 {
		return nil, errors.Errorf("negative epoch (%d) or optimizer step (%d)", serialized.Epoch, serialized.OptimizerStep)
	}
	if serialized.History == nil {
		return nil, errors.New("missing history")
	}
	if err := serialized.History.Validate(); err != nil {
		return nil, err
	}

	ckpt := &Checkpoint{
		Epoch:       serialized.Epoch,
		BestValLoss: math.Inf(1),
		Optimizer:   &optimizers.State{Optimizer: serialized.Optimizer, Step: serialized.OptimizerStep},
		History:     serialized.History,
	}
	if serialized.BestValLoss != nil {
		ckpt.BestValLoss = *serialized.BestValLoss
	}
	var end int
	if ckpt.Variables, err = decodeVars(serialized.Variables, data, &end); err != nil {
		return nil, err
	}
	if ckpt.Optimizer.Slots, err = decodeVars(serialized.OptimizerSlots, data, &end); err != nil {
		return nil, err
	}
	if end != len(data) {
		return nil, errors.Errorf("%d bytes of data, but variables only use %d", len(data), end)
	}
	return ckpt, nil
}

// decodeVars reads the variables from data, and updates end to the largest position used.
func decodeVars(list []serializedVar, data []byte, end *int) ([]*nn.Variable, error) {
	vars := make([]*nn.Variable, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, sv := range list {
		if sv.Name == "" || seen[sv.Name] {
			return nil, errors.Errorf("invalid or duplicate variable name %q", sv.Name)
		}
		seen[sv.Name] = true
		if len(sv.Dimensions) != 2 || sv.Dimensions[0] <= 0 || sv.Dimensions[1] <= 0 {
			return nil, errors.Errorf("variable %q has invalid dimensions %v", sv.Name, sv.Dimensions)
		}
		size := sv.Dimensions[0] * sv.Dimensions[1]
		if sv.Length != size*bytesPerValue || sv.Pos < 0 || sv.Pos+sv.Length > len(data) {
			return nil, errors.Errorf("variable %q (pos=%d, length=%d) doesn't fit %d bytes of data",
				sv.Name, sv.Pos, sv.Length, len(data))
		}
		values := make([]float64, size)
		raw := data[sv.Pos : sv.Pos+sv.Length]
		for ii := range values {
			values[ii] = math.Float64frombits(binary.LittleEndian.Uint64(raw[ii*bytesPerValue:]))
		}
		vars = append(vars, &nn.Variable{Name: sv.Name, Value: mat.NewDense(sv.Dimensions[0], sv.Dimensions[1], values)})
		*end = max(*end, sv.Pos+sv.Length)
	}
	return vars, nil
}
