// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := ReplaceTildeInDir("~/checkpoints")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "checkpoints"), got)

	got, err = ReplaceTildeInDir("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "sub", "data.bin")

	exists, err := FileExists(filePath)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, WriteFileAtomic(filePath, 0o644, func(f *os.File) error {
		_, err := f.Write([]byte("first"))
		return err
	}))
	contents, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(contents))

	// A failed write leaves the previous contents and no temporary files behind.
	err = WriteFileAtomic(filePath, 0o644, func(f *os.File) error {
		_, _ = f.Write([]byte("partial"))
		return errors.New("disk full")
	})
	require.Error(t, err)
	contents, err = os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(contents))
	entries, err := os.ReadDir(filepath.Dir(filePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
