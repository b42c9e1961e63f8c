// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"github.com/retrolabs/labeldb/pkg/errdefs"
	"github.com/retrolabs/labeldb/pkg/layout"
)

// ImageEntry pairs a key with its raw slot-ordered pixel payload.
type ImageEntry struct {
	Key   uint32
	Image []byte
}

// New returns an empty database: a valid header followed by an all-sentinel
// ID table. The region between header and data start is filled with the pad
// byte first, then the header overwrites the leading 256 bytes.
func New() *Database {
	data := make([]byte, layout.DataStart)
	fill(data, layout.PadByte)
	copy(data, layout.MakeHeader())

	db, err := parseBuffer(data)
	if err != nil {
		// A freshly built header cannot fail verification.
		panic(err)
	}
	return db
}

// NewFromEntries builds a database from an unordered entry list. Entries
// are sorted by key ascending; a repeated key fails with ErrDuplicateKey,
// any payload that is not exactly the raw pixel size fails with
// ErrInvalidSize and the reserved value 0xFFFFFFFF fails with
// ErrReservedKey.
func NewFromEntries(entries []ImageEntry) (*Database, error) {
	sorted := make([]ImageEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	if len(sorted) > layout.MaxEntries {
		return nil, errdefs.ErrTableFull
	}
	for i, entry := range sorted {
		if entry.Key == layout.Sentinel {
			return nil, errors.Wrapf(errdefs.ErrReservedKey, "key %08X", entry.Key)
		}
		if len(entry.Image) != layout.ImageSize {
			return nil, errors.Wrapf(errdefs.ErrInvalidSize, "key %08X: %d bytes, want %d", entry.Key, len(entry.Image), layout.ImageSize)
		}
		if i > 0 && sorted[i-1].Key == entry.Key {
			return nil, errors.Wrapf(errdefs.ErrDuplicateKey, "key %08X", entry.Key)
		}
	}

	data := make([]byte, layout.DataStart+len(sorted)*layout.SlotSize)
	fill(data[:layout.DataStart], layout.PadByte)
	copy(data, layout.MakeHeader())
	for idx, entry := range sorted {
		binary.LittleEndian.PutUint32(data[layout.TableOffset(idx):], entry.Key)
		writeSlot(data, idx, entry.Image)
	}

	return parseBuffer(data)
}

// Add returns a new database containing key with the given payload. The
// receiver is left untouched. Fails with ErrDuplicateKey when key already
// exists, ErrInvalidSize on a wrong payload length, ErrTableFull when
// the table is at capacity and ErrReservedKey for the table terminator
// value 0xFFFFFFFF.
func (db *Database) Add(key uint32, image []byte) (*Database, error) {
	if key == layout.Sentinel {
		// The sentinel terminates the table; storing it would make the
		// entry unreadable on the next parse.
		return nil, errors.Wrapf(errdefs.ErrReservedKey, "key %08X", key)
	}
	if len(image) != layout.ImageSize {
		return nil, errors.Wrapf(errdefs.ErrInvalidSize, "%d bytes, want %d", len(image), layout.ImageSize)
	}
	if db.Has(key) {
		return nil, errors.Wrapf(errdefs.ErrDuplicateKey, "key %08X", key)
	}
	if len(db.entries) >= layout.MaxEntries {
		return nil, errdefs.ErrTableFull
	}

	// First table position whose key exceeds the new key; the sort
	// invariant makes binary search valid here.
	pos := sort.Search(len(db.entries), func(i int) bool {
		return db.entries[i].Key > key
	})

	data := make([]byte, len(db.data)+layout.SlotSize)
	copy(data, db.data[:layout.HeaderSize])
	fill(data[layout.HeaderSize:layout.DataStart], layout.PadByte)

	// Splice the table around the insertion point.
	for idx, entry := range db.entries[:pos] {
		binary.LittleEndian.PutUint32(data[layout.TableOffset(idx):], entry.Key)
	}
	binary.LittleEndian.PutUint32(data[layout.TableOffset(pos):], key)
	for i, entry := range db.entries[pos:] {
		binary.LittleEndian.PutUint32(data[layout.TableOffset(pos+1+i):], entry.Key)
	}

	// Splice the slot region.
	copy(data[layout.DataStart:], db.data[layout.DataStart:layout.SlotOffset(pos)])
	writeSlot(data, pos, image)
	copy(data[layout.SlotOffset(pos+1):], db.data[layout.SlotOffset(pos):])

	return parseBuffer(data)
}

// Update returns a new database identical to the receiver except for the
// slot bytes of key. Fails with ErrNotFound when key is absent.
func (db *Database) Update(key uint32, image []byte) (*Database, error) {
	if len(image) != layout.ImageSize {
		return nil, errors.Wrapf(errdefs.ErrInvalidSize, "%d bytes, want %d", len(image), layout.ImageSize)
	}
	idx, ok := db.index[key]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrNotFound, "key %08X", key)
	}

	data := make([]byte, len(db.data))
	copy(data, db.data)
	writeSlot(data, idx, image)

	return parseBuffer(data)
}

// Delete returns a new, one-slot-smaller database with key and its slot
// removed and the following entries shifted down. Fails with ErrNotFound
// when key is absent.
func (db *Database) Delete(key uint32) (*Database, error) {
	pos, ok := db.index[key]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrNotFound, "key %08X", key)
	}

	data := make([]byte, len(db.data)-layout.SlotSize)
	copy(data, db.data[:layout.HeaderSize])
	fill(data[layout.HeaderSize:layout.DataStart], layout.PadByte)

	for idx, entry := range db.entries[:pos] {
		binary.LittleEndian.PutUint32(data[layout.TableOffset(idx):], entry.Key)
	}
	for i, entry := range db.entries[pos+1:] {
		binary.LittleEndian.PutUint32(data[layout.TableOffset(pos+i):], entry.Key)
	}

	copy(data[layout.DataStart:], db.data[layout.DataStart:layout.SlotOffset(pos)])
	copy(data[layout.SlotOffset(pos):], db.data[layout.SlotOffset(pos+1):])

	return parseBuffer(data)
}

// writeSlot writes the pixel payload at slot idx and fills the slot
// padding with the pad byte.
func writeSlot(data []byte, idx int, image []byte) {
	off := layout.SlotOffset(idx)
	copy(data[off:], image)
	fill(data[off+layout.ImageSize:off+layout.SlotSize], layout.PadByte)
}

func fill(buf []byte, b byte) {
	for i := range buf {
		buf[i] = b
	}
}
