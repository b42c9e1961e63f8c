// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package comparator implements structural (quick) and content-aware
// (detailed) diffing of two labels.db buffers. Quick comparison reads the
// two ID tables only and never looks at image payloads; detailed
// comparison hashes payloads at one of two granularities.
package comparator

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retrolabs/labeldb/pkg/errdefs"
	"github.com/retrolabs/labeldb/pkg/layout"
	"github.com/retrolabs/labeldb/pkg/metrics"
)

// Granularity selects the payload equality test of a detailed comparison.
type Granularity int

const (
	// Sampled hashes a fixed sparse subset of payload offsets. Fast, but
	// changes confined to unsampled bytes go undetected.
	Sampled Granularity = iota

	// Full hashes the entire payload. Slower, zero false negatives.
	// The synchronizer always uses Full.
	Full
)

func (g Granularity) String() string {
	if g == Full {
		return "full"
	}
	return "sampled"
}

// QuickResult reports structural equality of two databases.
type QuickResult struct {
	Identical   bool
	CountSource int
	CountTarget int
}

// PhaseTiming records per-phase elapsed time of a detailed comparison.
// Observability only, no correctness contract.
type PhaseTiming struct {
	TableRead      time.Duration
	TableCompare   time.Duration
	PayloadCompare time.Duration
}

// DiffResult is the outcome of a detailed comparison. All key lists are
// ascending.
type DiffResult struct {
	OnlyInSource []uint32
	OnlyInTarget []uint32
	Modified     []uint32
	Timing       PhaseTiming
}

// InSync reports whether the two databases hold the same keys with equal
// payloads under the selected granularity.
func (r *DiffResult) InSync() bool {
	return len(r.OnlyInSource) == 0 && len(r.OnlyInTarget) == 0 && len(r.Modified) == 0
}

// Quick compares the two ID tables only: equal entry counts and
// byte-identical ordered key sequences. Image payloads are never
// inspected, so a pixel-only change still reports identical.
func Quick(source, target []byte) (*QuickResult, error) {
	start := time.Now()
	if err := checkCompatible(source, target); err != nil {
		return nil, err
	}

	sourceKeys, err := readTable(source)
	if err != nil {
		return nil, err
	}
	targetKeys, err := readTable(target)
	if err != nil {
		return nil, err
	}

	result := &QuickResult{
		CountSource: len(sourceKeys),
		CountTarget: len(targetKeys),
	}
	if len(sourceKeys) == len(targetKeys) {
		result.Identical = bytes.Equal(
			source[layout.TableStart:layout.TableOffset(len(sourceKeys))],
			target[layout.TableStart:layout.TableOffset(len(targetKeys))],
		)
	}

	metrics.CompareCount("quick")
	metrics.CompareDuration("quick", start)

	return result, nil
}

// Detailed computes the key sets present on one side only and the shared
// keys whose payload differs under the selected granularity.
func Detailed(source, target []byte, granularity Granularity) (*DiffResult, error) {
	start := time.Now()
	if err := checkCompatible(source, target); err != nil {
		return nil, err
	}

	result := &DiffResult{}

	phase := time.Now()
	sourceKeys, err := readTable(source)
	if err != nil {
		return nil, err
	}
	targetKeys, err := readTable(target)
	if err != nil {
		return nil, err
	}
	result.Timing.TableRead = time.Since(phase)

	phase = time.Now()
	sourceIndex := make(map[uint32]int, len(sourceKeys))
	for idx, key := range sourceKeys {
		sourceIndex[key] = idx
	}
	targetIndex := make(map[uint32]int, len(targetKeys))
	for idx, key := range targetKeys {
		targetIndex[key] = idx
	}

	type sharedKey struct {
		key                  uint32
		sourceIdx, targetIdx int
	}
	var shared []sharedKey
	for idx, key := range sourceKeys {
		if targetIdx, ok := targetIndex[key]; ok {
			shared = append(shared, sharedKey{key: key, sourceIdx: idx, targetIdx: targetIdx})
		} else {
			result.OnlyInSource = append(result.OnlyInSource, key)
		}
	}
	for _, key := range targetKeys {
		if _, ok := sourceIndex[key]; !ok {
			result.OnlyInTarget = append(result.OnlyInTarget, key)
		}
	}
	result.Timing.TableCompare = time.Since(phase)

	phase = time.Now()
	for _, entry := range shared {
		sourcePayload := imagePayload(source, entry.sourceIdx)
		targetPayload := imagePayload(target, entry.targetIdx)
		if payloadHash(sourcePayload, granularity) != payloadHash(targetPayload, granularity) {
			result.Modified = append(result.Modified, entry.key)
		}
	}
	result.Timing.PayloadCompare = time.Since(phase)

	logrus.Debugf("detailed compare (%s): table read %s, table compare %s, payload compare %s",
		granularity, result.Timing.TableRead, result.Timing.TableCompare, result.Timing.PayloadCompare)

	metrics.CompareCount(granularity.String())
	metrics.CompareDuration(granularity.String(), start)

	return result, nil
}

// checkCompatible requires both buffers to verify and to carry identical
// header bytes, version field included.
func checkCompatible(source, target []byte) error {
	if err := layout.VerifyHeader(source); err != nil {
		return err
	}
	if err := layout.VerifyHeader(target); err != nil {
		return err
	}
	if !bytes.Equal(source[:layout.HeaderSize], target[:layout.HeaderSize]) {
		return errdefs.NewFormatError("header mismatch",
			"source version 0x%08X, target version 0x%08X",
			layout.HeaderVersion(source), layout.HeaderVersion(target))
	}
	return nil
}

// readTable scans the ID table of a verified buffer, honoring the same
// stop conditions as database parsing: the size-derived count and an
// early sentinel.
func readTable(data []byte) ([]uint32, error) {
	if len(data) < layout.DataStart {
		return nil, errdefs.NewFormatError("file too short", "%d bytes, data starts at %d", len(data), layout.DataStart)
	}
	count := (len(data) - layout.DataStart) / layout.SlotSize
	if count > layout.MaxEntries {
		count = layout.MaxEntries
	}
	var keys []uint32
	for idx := 0; idx < count; idx++ {
		key := binary.LittleEndian.Uint32(data[layout.TableOffset(idx):])
		if key == layout.Sentinel {
			break
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func imagePayload(data []byte, idx int) []byte {
	off := layout.SlotOffset(idx)
	return data[off : off+layout.ImageSize]
}
