// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"time"
)

// Progress is one snapshot of a running copy. For directory copies the
// Overall fields aggregate across all files and Percent refers to them;
// for a single file they equal the per-file fields.
type Progress struct {
	Path string

	// FileIndex counts from 1; FileCount is 1 for a single-file copy.
	FileIndex int
	FileCount int

	// Current file.
	BytesWritten int64
	TotalBytes   int64

	// Across the whole operation.
	OverallBytes int64
	OverallTotal int64

	Percent float64
	Elapsed time.Duration

	// Throughput is cumulative bytes over elapsed time, not an
	// instantaneous derivative, so it does not spike between chunks.
	Throughput float64 // bytes per second

	// Remaining extrapolates linearly from Throughput.
	Remaining time.Duration

	Done bool
}

// ProgressFunc receives progress snapshots. It runs synchronously inside
// the copy loop between chunk writes.
type ProgressFunc func(Progress)

// reporter throttles progress emission to a minimum interval. The first
// report and every completion report bypass the throttle.
type reporter struct {
	fn       ProgressFunc
	interval time.Duration
	start    time.Time
	last     time.Time
	emitted  bool

	fileIndex int
	fileCount int

	// overallBase is the byte count completed by previous files.
	overallBase  int64
	overallTotal int64
}

func newReporter(fn ProgressFunc, interval time.Duration, fileIndex, fileCount int, overallTotal int64) *reporter {
	return &reporter{
		fn:           fn,
		interval:     interval,
		start:        time.Now(),
		fileIndex:    fileIndex,
		fileCount:    fileCount,
		overallTotal: overallTotal,
	}
}

func (r *reporter) elapsed() time.Duration {
	return time.Since(r.start)
}

// nextFile advances the aggregate model to the next file of a directory
// copy. completed is the byte size of the file just finished.
func (r *reporter) nextFile(completed int64) {
	r.overallBase += completed
	r.fileIndex++
	r.emitted = false
}

func (r *reporter) report(path string, written, total int64) {
	if r.emitted && time.Since(r.last) < r.interval {
		return
	}
	r.emit(path, written, total, false)
}

func (r *reporter) complete(path string, written, total int64) {
	r.emit(path, written, total, true)
}

func (r *reporter) emit(path string, written, total int64, done bool) {
	if r.fn == nil {
		return
	}
	r.emitted = true
	r.last = time.Now()

	overall := r.overallBase + written
	elapsed := r.elapsed()

	snapshot := Progress{
		Path:         path,
		FileIndex:    r.fileIndex,
		FileCount:    r.fileCount,
		BytesWritten: written,
		TotalBytes:   total,
		OverallBytes: overall,
		OverallTotal: r.overallTotal,
		Elapsed:      elapsed,
		Done:         done,
	}
	if r.overallTotal > 0 {
		snapshot.Percent = float64(overall) / float64(r.overallTotal) * 100
	} else {
		snapshot.Percent = 100
	}
	if elapsed > 0 {
		snapshot.Throughput = float64(overall) / elapsed.Seconds()
	}
	if snapshot.Throughput > 0 {
		remaining := float64(r.overallTotal-overall) / snapshot.Throughput
		snapshot.Remaining = time.Duration(remaining * float64(time.Second))
	}

	r.fn(snapshot)
}
