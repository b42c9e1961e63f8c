// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package syncer brings a target copy of a labels.db file up to date with
// a source copy using the minimal set of byte writes. The target medium
// is assumed to be slow and wear sensitive: slots whose content is
// unchanged are never rewritten.
package syncer

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/retrolabs/labeldb/pkg/comparator"
	"github.com/retrolabs/labeldb/pkg/database"
	"github.com/retrolabs/labeldb/pkg/layout"
	"github.com/retrolabs/labeldb/pkg/metrics"
	"github.com/retrolabs/labeldb/pkg/utils"
)

// Policy selects the treatment of keys present only in the target.
type Policy int

const (
	// PolicyKeep leaves target-only keys untouched. This is the default.
	PolicyKeep Policy = iota

	// PolicyMirror removes target-only keys so the target becomes an
	// exact structural mirror of the source. Opt-in.
	PolicyMirror
)

// Opt configures a synchronization run.
type Opt struct {
	Policy     Policy
	Durability bool // fsync the target after applying writes
}

// Result reports what a synchronization run wrote.
type Result struct {
	KeysAdded    int
	KeysRemoved  int
	SlotsWritten int
	BytesWritten int64
	Diff         *comparator.DiffResult
}

// Sync compares source and target and applies the minimal writes to the
// target file. Comparison always runs at full granularity: sampled
// hashing may miss modified slots and must never drive a sync.
func Sync(sourcePath, targetPath string, opt Opt) (*Result, error) {
	sourceData, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, errors.Wrap(err, "read source database")
	}
	targetData, err := os.ReadFile(targetPath)
	if err != nil {
		return nil, errors.Wrap(err, "read target database")
	}

	diff, err := comparator.Detailed(sourceData, targetData, comparator.Full)
	if err != nil {
		return nil, errors.Wrap(err, "compare databases")
	}

	result := &Result{Diff: diff}
	if len(diff.Modified) == 0 && len(diff.OnlyInSource) == 0 &&
		(opt.Policy == PolicyKeep || len(diff.OnlyInTarget) == 0) {
		logrus.Debugf("target %s already in sync, nothing to write", targetPath)
		return result, nil
	}

	desired, err := desiredState(sourceData, targetData, diff, opt.Policy)
	if err != nil {
		return nil, err
	}

	writes := computeWrites(targetData, desired)

	target, err := os.OpenFile(targetPath, os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open target database")
	}
	defer target.Close()

	for _, w := range writes {
		if _, err := target.WriteAt(w.data, w.off); err != nil {
			return nil, errors.Wrapf(err, "write %d bytes at offset %d", len(w.data), w.off)
		}
		result.BytesWritten += int64(len(w.data))
		if w.slot {
			result.SlotsWritten++
		}
	}
	if len(desired) < len(targetData) {
		if err := target.Truncate(int64(len(desired))); err != nil {
			return nil, errors.Wrap(err, "truncate target database")
		}
	}
	if opt.Durability {
		if err := target.Sync(); err != nil {
			return nil, errors.Wrap(err, "sync target database")
		}
	}

	result.KeysAdded = len(diff.OnlyInSource)
	if opt.Policy == PolicyMirror {
		result.KeysRemoved = len(diff.OnlyInTarget)
	}

	metrics.SyncSlotsWritten(result.SlotsWritten)
	metrics.SyncBytesWritten(result.BytesWritten)

	logrus.Infof("synchronized %s: %d slots, %d keys added, %d keys removed, %d bytes written",
		targetPath, result.SlotsWritten, result.KeysAdded, result.KeysRemoved, result.BytesWritten)

	return result, nil
}

// desiredState computes the byte image the target should hold after the
// run. Source-only keys are spliced into the target with the same
// procedure as a regular add; modified and added keys then receive the
// source's full 25,600-byte slot verbatim.
func desiredState(sourceData, targetData []byte, diff *comparator.DiffResult, policy Policy) ([]byte, error) {
	source, err := database.Parse(sourceData)
	if err != nil {
		return nil, errors.Wrap(err, "parse source database")
	}
	desired, err := database.Parse(targetData)
	if err != nil {
		return nil, errors.Wrap(err, "parse target database")
	}

	if policy == PolicyMirror {
		for _, key := range diff.OnlyInTarget {
			logrus.Debugf("mirror: removing target-only key %s", utils.FormatKey(key))
			if desired, err = desired.Delete(key); err != nil {
				return nil, errors.Wrapf(err, "remove key %s", utils.FormatKey(key))
			}
		}
	}
	for _, key := range diff.OnlyInSource {
		image, err := source.Image(key)
		if err != nil {
			return nil, errors.Wrapf(err, "read source image %s", utils.FormatKey(key))
		}
		if desired, err = desired.Add(key, image); err != nil {
			return nil, errors.Wrapf(err, "add key %s", utils.FormatKey(key))
		}
	}

	data := desired.Bytes()
	for _, key := range append(append([]uint32{}, diff.Modified...), diff.OnlyInSource...) {
		slot, err := source.Slot(key)
		if err != nil {
			return nil, errors.Wrapf(err, "read source slot %s", utils.FormatKey(key))
		}
		idx, ok := desired.IndexOf(key)
		if !ok {
			return nil, errors.Errorf("key %s lost during splice", utils.FormatKey(key))
		}
		copy(data[layout.SlotOffset(idx):], slot)
	}

	return data, nil
}

type writeRange struct {
	off  int64
	data []byte
	slot bool
}

// computeWrites diffs current against desired at layout granularity:
// the header as one unit, the ID table in 4-byte entries with adjacent
// changed entries coalesced, and image slots whole. Anything beyond the
// current length must be written.
func computeWrites(current, desired []byte) []writeRange {
	var writes []writeRange

	if !bytes.Equal(current[:layout.HeaderSize], desired[:layout.HeaderSize]) {
		writes = append(writes, writeRange{off: 0, data: desired[:layout.HeaderSize]})
	}

	runStart := -1
	flush := func(end int) {
		if runStart >= 0 {
			writes = append(writes, writeRange{
				off:  layout.TableOffset(runStart),
				data: desired[layout.TableOffset(runStart):layout.TableOffset(end)],
			})
			runStart = -1
		}
	}
	for idx := 0; idx < layout.MaxEntries; idx++ {
		off := layout.TableOffset(idx)
		if !bytes.Equal(current[off:off+layout.KeySize], desired[off:off+layout.KeySize]) {
			if runStart < 0 {
				runStart = idx
			}
		} else {
			flush(idx)
		}
	}
	flush(layout.MaxEntries)

	slotCount := (len(desired) - layout.DataStart) / layout.SlotSize
	for idx := 0; idx < slotCount; idx++ {
		off := layout.SlotOffset(idx)
		end := off + layout.SlotSize
		if int(end) <= len(current) && bytes.Equal(current[off:end], desired[off:end]) {
			continue
		}
		writes = append(writes, writeRange{off: off, data: desired[off:end], slot: true})
	}

	return writes
}
