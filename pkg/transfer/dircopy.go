// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type dirEntry struct {
	rel  string
	info os.FileInfo
}

// CopyDir copies a directory tree. All files and subdirectories are
// enumerated first to pre-compute the byte total, the full destination
// tree is created, then files are copied one at a time with each file's
// progress folded into an aggregate "file i of n" model.
func CopyDir(ctx context.Context, src, dst string, cfg Config, fn ProgressFunc) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	var dirs, files []dirEntry
	var totalBytes int64

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, dirEntry{rel: rel, info: info})
			return nil
		}
		files = append(files, dirEntry{rel: rel, info: info})
		totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "enumerate source directory")
	}

	session := uuid.NewString()
	logrus.Infof("[%s] copying %d files (%s) from %s to %s",
		session, len(files), humanize.Bytes(uint64(totalBytes)), src, dst)

	// Destination tree first, so every file copy has its parent in place.
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(dst, dir.rel), dir.info.Mode().Perm()); err != nil {
			return errors.Wrap(err, "create destination directory")
		}
	}

	rep := newReporter(fn, cfg.ProgressInterval, 1, len(files), totalBytes)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "copy canceled at file %d of %d", rep.fileIndex, len(files))
		}
		srcPath := filepath.Join(src, file.rel)
		dstPath := filepath.Join(dst, file.rel)
		if err := copyFile(ctx, srcPath, dstPath, file.info, cfg, rep); err != nil {
			return errors.Wrapf(err, "copy file %s", file.rel)
		}
		rep.nextFile(file.info.Size())
	}

	logrus.Infof("[%s] copied %d files (%s) in %s",
		session, len(files), humanize.Bytes(uint64(totalBytes)), rep.elapsed())

	return nil
}
