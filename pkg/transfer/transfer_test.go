// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestCopyFileExactBytes(t *testing.T) {
	for _, tc := range []struct {
		name      string
		size      int
		chunkSize int64
		sync      bool
	}{
		{"single chunk", 100, 4096, false},
		{"chunk aligned", 4096, 1024, false},
		{"chunk unaligned", 5000, 1024, true},
		{"one byte chunks", 17, 1, true},
		{"empty file", 0, 4096, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			src := writeFile(t, dir, "src.bin", tc.size)
			dst := filepath.Join(dir, "dst.bin")

			var last Progress
			cfg := Config{ChunkSize: tc.chunkSize, SyncPerChunk: tc.sync}
			err := CopyFile(context.Background(), src, dst, cfg, func(p Progress) {
				last = p
			})
			require.NoError(t, err)

			assert.True(t, last.Done)
			assert.Equal(t, int64(tc.size), last.BytesWritten)
			assert.Equal(t, int64(tc.size), last.TotalBytes)

			want, err := os.ReadFile(src)
			require.NoError(t, err)
			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestCopyFileRequiresChunkSize(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.bin", 10)

	err := CopyFile(context.Background(), src, filepath.Join(dir, "dst.bin"), Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk size")
}

func TestCopyFileFirstChunkAndCompletionBypassThrottle(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.bin", 10*1024)
	dst := filepath.Join(dir, "dst.bin")

	var snapshots []Progress
	cfg := Config{ChunkSize: 1024, ProgressInterval: time.Hour}
	err := CopyFile(context.Background(), src, dst, cfg, func(p Progress) {
		snapshots = append(snapshots, p)
	})
	require.NoError(t, err)

	// The hour-long throttle suppresses everything except the first
	// chunk and the completion event.
	require.Len(t, snapshots, 2)
	assert.Equal(t, int64(1024), snapshots[0].BytesWritten)
	assert.False(t, snapshots[0].Done)
	assert.True(t, snapshots[1].Done)
	assert.Equal(t, int64(10*1024), snapshots[1].BytesWritten)
}

func TestCopyFileThroughputIsCumulative(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.bin", 64*1024)
	dst := filepath.Join(dir, "dst.bin")

	cfg := Config{ChunkSize: 1024}
	err := CopyFile(context.Background(), src, dst, cfg, func(p Progress) {
		if p.Elapsed > 0 {
			assert.InDelta(t, float64(p.OverallBytes)/p.Elapsed.Seconds(), p.Throughput, 1e-6)
		}
		if p.Done {
			assert.Equal(t, time.Duration(0), p.Remaining)
			assert.Equal(t, float64(100), p.Percent)
		}
	})
	require.NoError(t, err)
}

func TestCopyFileCancellation(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.bin", 1024)
	dst := filepath.Join(dir, "dst.bin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CopyFile(ctx, src, dst, Config{ChunkSize: 64}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCopyDir(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "out")
	writeFile(t, srcDir, "a.bin", 10)
	writeFile(t, srcDir, "sub/b.bin", 100)
	writeFile(t, srcDir, "sub/deep/c.bin", 0)

	var completions []Progress
	var overallTotal int64
	cfg := Config{ChunkSize: 7, SyncPerChunk: true}
	err := CopyDir(context.Background(), srcDir, dstDir, cfg, func(p Progress) {
		overallTotal = p.OverallTotal
		if p.Done {
			completions = append(completions, p)
		}
	})
	require.NoError(t, err)

	// One completion per file; their byte counts sum to the reported
	// overall total.
	require.Len(t, completions, 3)
	var sum int64
	for _, p := range completions {
		assert.Equal(t, 3, p.FileCount)
		sum += p.BytesWritten
	}
	assert.Equal(t, int64(110), sum)
	assert.Equal(t, int64(110), overallTotal)

	final := completions[len(completions)-1]
	assert.Equal(t, int64(110), final.OverallBytes)
	assert.Equal(t, float64(100), final.Percent)

	for _, rel := range []string{"a.bin", "sub/b.bin", "sub/deep/c.bin"} {
		want, err := os.ReadFile(filepath.Join(srcDir, rel))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dstDir, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCopyDirCreatesTreeBeforeFiles(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "out")
	writeFile(t, srcDir, "sub/only.bin", 5)
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "empty"), 0755))

	err := CopyDir(context.Background(), srcDir, dstDir, Config{ChunkSize: 1024}, nil)
	require.NoError(t, err)

	// Empty directories are replicated even though no file lives there.
	info, err := os.Stat(filepath.Join(dstDir, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
