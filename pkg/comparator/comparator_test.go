// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package comparator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrolabs/labeldb/pkg/database"
	"github.com/retrolabs/labeldb/pkg/errdefs"
	"github.com/retrolabs/labeldb/pkg/layout"
)

func makeImage(seed byte) []byte {
	image := make([]byte, layout.ImageSize)
	for i := range image {
		image[i] = seed + byte(i%31)
	}
	return image
}

func makeBuffer(t *testing.T, keys ...uint32) []byte {
	t.Helper()
	entries := make([]database.ImageEntry, len(keys))
	for i, key := range keys {
		entries[i] = database.ImageEntry{Key: key, Image: makeImage(byte(key))}
	}
	db, err := database.NewFromEntries(entries)
	require.NoError(t, err)
	return db.Bytes()
}

func TestQuickIdenticalCopy(t *testing.T) {
	a := makeBuffer(t, 1, 5, 9)
	b := makeBuffer(t, 1, 5, 9)

	result, err := Quick(a, b)
	require.NoError(t, err)
	assert.True(t, result.Identical)
	assert.Equal(t, 3, result.CountSource)
	assert.Equal(t, 3, result.CountTarget)
}

func TestQuickAfterAdd(t *testing.T) {
	a := makeBuffer(t, 1, 5, 9)

	db, err := database.Parse(a)
	require.NoError(t, err)
	db, err = db.Add(7, makeImage(7))
	require.NoError(t, err)

	result, err := Quick(a, db.Bytes())
	require.NoError(t, err)
	assert.False(t, result.Identical)
	assert.Equal(t, 3, result.CountSource)
	assert.Equal(t, 4, result.CountTarget)
}

func TestQuickIgnoresPayload(t *testing.T) {
	a := makeBuffer(t, 1, 5)
	b := makeBuffer(t, 1, 5)
	// Flip a pixel byte: quick compare reads tables only, so this is a
	// deliberate false "identical".
	b[layout.DataStart] ^= 0xFF

	result, err := Quick(a, b)
	require.NoError(t, err)
	assert.True(t, result.Identical)
}

func TestQuickAfterDeleteScenario(t *testing.T) {
	original := makeBuffer(t, 0x00000001, 0x00000005, 0x00000009)

	db, err := database.Parse(original)
	require.NoError(t, err)
	db, err = db.Delete(0x00000005)
	require.NoError(t, err)

	result, err := Quick(original, db.Bytes())
	require.NoError(t, err)
	assert.False(t, result.Identical)
	assert.Equal(t, 3, result.CountSource)
	assert.Equal(t, 2, result.CountTarget)
}

func TestDetailedKeySets(t *testing.T) {
	a := makeBuffer(t, 1, 2, 3)
	b := makeBuffer(t, 2, 3, 4)

	db, err := database.Parse(b)
	require.NoError(t, err)
	db, err = db.Update(3, makeImage(0x55))
	require.NoError(t, err)

	diff, err := Detailed(a, db.Bytes(), Full)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, diff.OnlyInSource)
	assert.Equal(t, []uint32{4}, diff.OnlyInTarget)
	assert.Equal(t, []uint32{3}, diff.Modified)
	assert.False(t, diff.InSync())
}

func TestDetailedInSync(t *testing.T) {
	a := makeBuffer(t, 1, 2)
	b := makeBuffer(t, 1, 2)

	for _, granularity := range []Granularity{Sampled, Full} {
		diff, err := Detailed(a, b, granularity)
		require.NoError(t, err)
		assert.True(t, diff.InSync())
	}
}

func TestSampledMissesUnsampledChange(t *testing.T) {
	a := makeBuffer(t, 1)
	b := makeBuffer(t, 1)
	// Offset 1 of the payload is never sampled with a 509-byte stride.
	b[layout.DataStart+1] ^= 0xFF

	sampled, err := Detailed(a, b, Sampled)
	require.NoError(t, err)
	assert.Empty(t, sampled.Modified)

	full, err := Detailed(a, b, Full)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, full.Modified)
}

func TestFullModifiedIsSupersetOfSampled(t *testing.T) {
	a := makeBuffer(t, 1, 2, 3, 4)
	b := makeBuffer(t, 1, 2, 3, 4)
	// Change key 2 at a sampled offset and key 3 at an unsampled one.
	b[int(layout.SlotOffset(1))+sampleStride] ^= 0xFF
	b[int(layout.SlotOffset(2))+2] ^= 0xFF

	sampled, err := Detailed(a, b, Sampled)
	require.NoError(t, err)
	full, err := Detailed(a, b, Full)
	require.NoError(t, err)

	fullSet := map[uint32]bool{}
	for _, key := range full.Modified {
		fullSet[key] = true
	}
	for _, key := range sampled.Modified {
		assert.True(t, fullSet[key], "sampled-modified key %08X missing from full-modified", key)
	}
	assert.Equal(t, []uint32{2}, sampled.Modified)
	assert.Equal(t, []uint32{2, 3}, full.Modified)
}

func TestDetailedIgnoresPadding(t *testing.T) {
	a := makeBuffer(t, 1)
	b := makeBuffer(t, 1)
	// Padding carries no information and may legitimately differ.
	b[int(layout.SlotOffset(0))+layout.ImageSize] = 0x00

	diff, err := Detailed(a, b, Full)
	require.NoError(t, err)
	assert.True(t, diff.InSync())
}

func TestHeaderMismatchFails(t *testing.T) {
	a := makeBuffer(t, 1)
	b := makeBuffer(t, 1)
	// Bump the version field: both headers verify but do not match.
	b[0x40] = 0x01

	_, err := Quick(a, b)
	require.Error(t, err)
	assert.True(t, errdefs.IsFormatError(err))

	_, err = Detailed(a, b, Full)
	require.Error(t, err)
	assert.True(t, errdefs.IsFormatError(err))
}

func TestDetailedReportsPhaseTimings(t *testing.T) {
	a := makeBuffer(t, 1, 2)
	b := makeBuffer(t, 1, 2)

	diff, err := Detailed(a, b, Full)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, diff.Timing.TableRead, time.Duration(0))
	assert.GreaterOrEqual(t, diff.Timing.TableCompare, time.Duration(0))
	assert.GreaterOrEqual(t, diff.Timing.PayloadCompare, time.Duration(0))
}
