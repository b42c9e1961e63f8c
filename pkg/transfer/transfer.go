// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package transfer copies files and directory trees in fixed-size chunks
// with throttled progress reporting. It is built for pushing large files
// to slow removable storage: the chunk size is always chosen by the
// caller per medium, and an optional durability barrier after each chunk
// trades throughput for the guarantee that reported progress never
// outruns physical persistence.
package transfer

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/retrolabs/labeldb/pkg/metrics"
)

// Config is the single typed configuration of the engine. ChunkSize is
// required; there is no hidden platform default.
type Config struct {
	// ChunkSize is the read/write unit in bytes. Must be positive.
	ChunkSize int64

	// SyncPerChunk issues a durability barrier after every chunk write.
	// Disabling it raises throughput, but reported progress can then
	// outrun physical persistence.
	SyncPerChunk bool

	// ProgressInterval is the minimum spacing between progress
	// callbacks. The first chunk and the completion event are always
	// reported regardless.
	ProgressInterval time.Duration
}

func (cfg Config) validate() error {
	if cfg.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	return nil
}

// CopyFile copies one file in cfg.ChunkSize chunks. fn may be nil.
// Progress callbacks run synchronously between chunk writes: a slow
// callback stalls the copy loop, so callbacks should enqueue and return.
// Cancellation is checked between chunks; on error or cancellation the
// partially written destination is left in place.
func CopyFile(ctx context.Context, src, dst string, cfg Config, fn ProgressFunc) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(err, "stat source file")
	}

	session := uuid.NewString()
	logrus.Infof("[%s] copying %s (%s) to %s, chunk size %s, sync per chunk: %v",
		session, src, humanize.Bytes(uint64(info.Size())), dst,
		humanize.Bytes(uint64(cfg.ChunkSize)), cfg.SyncPerChunk)

	rep := newReporter(fn, cfg.ProgressInterval, 1, 1, info.Size())
	if err := copyFile(ctx, src, dst, info, cfg, rep); err != nil {
		return err
	}

	logrus.Infof("[%s] copied %s in %s", session, humanize.Bytes(uint64(info.Size())), rep.elapsed())
	return nil
}

// copyFile runs the chunk loop for one file, reporting through rep so a
// directory copy can fold per-file progress into its aggregate model.
func copyFile(ctx context.Context, src, dst string, info os.FileInfo, cfg Config, rep *reporter) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source file")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrap(err, "create destination file")
	}
	defer out.Close()

	total := info.Size()
	buf := make([]byte, cfg.ChunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "copy canceled after %d of %d bytes", written, total)
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return errors.Wrapf(err, "write failed after %d of %d bytes", written, total)
			}
			if cfg.SyncPerChunk {
				if err := barrier(out); err != nil {
					return errors.Wrapf(err, "durability barrier failed after %d of %d bytes", written, total)
				}
			}
			written += int64(n)
			metrics.TransferBytes(int64(n))
			rep.report(dst, written, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.Wrapf(readErr, "read failed after %d of %d bytes", written, total)
		}
	}

	// The completion event bypasses the throttle; zero-byte files get it too.
	rep.complete(dst, written, total)

	return nil
}
