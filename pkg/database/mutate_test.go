// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrolabs/labeldb/pkg/errdefs"
	"github.com/retrolabs/labeldb/pkg/layout"
)

func TestNewIsPadThenHeader(t *testing.T) {
	data := New().Bytes()
	require.Len(t, data, layout.DataStart)
	require.NoError(t, layout.VerifyHeader(data))
	// Everything between header and data start is pad bytes, which also
	// makes the whole table read as sentinels.
	for _, b := range data[layout.HeaderSize:] {
		require.Equal(t, byte(layout.PadByte), b)
	}
}

func TestNewFromEntriesSortsByKey(t *testing.T) {
	db, err := NewFromEntries([]ImageEntry{
		{Key: 0x30, Image: makeImage(3)},
		{Key: 0x10, Image: makeImage(1)},
		{Key: 0x20, Image: makeImage(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x10, 0x20, 0x30}, db.Keys())

	image, err := db.Image(0x20)
	require.NoError(t, err)
	assert.Equal(t, makeImage(2), image)
}

func TestNewFromEntriesRejectsDuplicates(t *testing.T) {
	_, err := NewFromEntries([]ImageEntry{
		{Key: 0x10, Image: makeImage(1)},
		{Key: 0x10, Image: makeImage(2)},
	})
	assert.ErrorIs(t, err, errdefs.ErrDuplicateKey)
}

func TestNewFromEntriesRejectsBadPayloadSize(t *testing.T) {
	_, err := NewFromEntries([]ImageEntry{
		{Key: 0x10, Image: make([]byte, layout.ImageSize-1)},
	})
	assert.ErrorIs(t, err, errdefs.ErrInvalidSize)
}

func TestAddInsertsInOrder(t *testing.T) {
	db := makeDatabase(t, 0x10, 0x30)

	added, err := db.Add(0x20, makeImage(2))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x10, 0x20, 0x30}, added.Keys())
	assert.Equal(t, 3, added.Count())

	// Neighbors keep their payloads across the splice.
	for _, key := range []uint32{0x10, 0x30} {
		image, err := added.Image(key)
		require.NoError(t, err)
		assert.Equal(t, makeImage(byte(key)), image)
	}
}

func TestAddAtBothEnds(t *testing.T) {
	db := makeDatabase(t, 0x20)

	front, err := db.Add(0x01, makeImage(1))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x01, 0x20}, front.Keys())

	back, err := db.Add(0xFFFFFFFE, makeImage(9))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x20, 0xFFFFFFFE}, back.Keys())
}

func TestAddLeavesReceiverUntouched(t *testing.T) {
	db := makeDatabase(t, 0x10)
	before := db.Bytes()

	_, err := db.Add(0x20, makeImage(2))
	require.NoError(t, err)

	assert.Equal(t, before, db.Bytes())
	assert.Equal(t, []uint32{0x10}, db.Keys())
}

func TestAddRejectsDuplicate(t *testing.T) {
	db := makeDatabase(t, 0x10)
	_, err := db.Add(0x10, makeImage(1))
	assert.ErrorIs(t, err, errdefs.ErrDuplicateKey)
}

func TestAddRejectsReservedKey(t *testing.T) {
	db := makeDatabase(t, 0x10)

	// 0xFFFFFFFF terminates the table, so a slot stored under it would
	// vanish on the next parse. It must be refused up front.
	_, err := db.Add(layout.Sentinel, makeImage(1))
	assert.ErrorIs(t, err, errdefs.ErrReservedKey)
	assert.Equal(t, []uint32{0x10}, db.Keys())
}

func TestNewFromEntriesRejectsReservedKey(t *testing.T) {
	_, err := NewFromEntries([]ImageEntry{
		{Key: 0x10, Image: makeImage(1)},
		{Key: layout.Sentinel, Image: makeImage(2)},
	})
	assert.ErrorIs(t, err, errdefs.ErrReservedKey)
}

func TestAddRejectsBadPayloadSize(t *testing.T) {
	db := makeDatabase(t, 0x10)
	_, err := db.Add(0x20, make([]byte, layout.ImageSize+1))
	assert.ErrorIs(t, err, errdefs.ErrInvalidSize)
}

func TestUpdateChangesOnlyTargetSlot(t *testing.T) {
	db := makeDatabase(t, 0x10, 0x20, 0x30)

	updated, err := db.Update(0x20, makeImage(0x7F))
	require.NoError(t, err)

	// Table bytes are identical before and after.
	assert.Equal(t, db.TableBytes(), updated.TableBytes())
	assert.Equal(t, db.Keys(), updated.Keys())

	before := db.Bytes()
	after := updated.Bytes()
	slotStart := int(layout.SlotOffset(1))
	slotEnd := slotStart + layout.SlotSize
	assert.Equal(t, before[:slotStart], after[:slotStart])
	assert.Equal(t, before[slotEnd:], after[slotEnd:])
	assert.False(t, bytes.Equal(before[slotStart:slotEnd], after[slotStart:slotEnd]))

	image, err := updated.Image(0x20)
	require.NoError(t, err)
	assert.Equal(t, makeImage(0x7F), image)
}

func TestUpdateRejectsMissingKey(t *testing.T) {
	db := makeDatabase(t, 0x10)
	_, err := db.Update(0x20, makeImage(2))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDeleteShiftsRemainingEntries(t *testing.T) {
	db := makeDatabase(t, 0x10, 0x20, 0x30)

	deleted, err := db.Delete(0x20)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x10, 0x30}, deleted.Keys())
	assert.Equal(t, 2, deleted.Count())
	assert.Equal(t, db.Size()-layout.SlotSize, deleted.Size())

	for _, key := range []uint32{0x10, 0x30} {
		image, err := deleted.Image(key)
		require.NoError(t, err)
		assert.Equal(t, makeImage(byte(key)), image)
	}
}

func TestDeleteRejectsMissingKey(t *testing.T) {
	db := makeDatabase(t, 0x10)
	_, err := db.Delete(0x20)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDeleteThenParseRoundTrip(t *testing.T) {
	db := makeDatabase(t, 0x00000001, 0x00000005, 0x00000009)

	deleted, err := db.Delete(0x00000005)
	require.NoError(t, err)

	parsed, err := Parse(deleted.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 9}, parsed.Keys())
	assert.False(t, parsed.Has(5))
}
