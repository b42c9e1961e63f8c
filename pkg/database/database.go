// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package database implements the in-memory view of a labels.db buffer
// and the whole-buffer mutation operations. A Database never mutates its
// backing buffer: add, update and delete each produce an independent new
// Database and leave the receiver untouched. The engine provides no
// locking; callers serialize mutations against the same file externally.
package database

import (
	"encoding/binary"

	"github.com/opencontainers/go-digest"

	"github.com/retrolabs/labeldb/pkg/errdefs"
	"github.com/retrolabs/labeldb/pkg/layout"
)

// Entry locates one key inside a database buffer.
type Entry struct {
	Key    uint32
	Index  int
	Offset int64
}

// Database is an immutable view over a labels.db buffer. The entry list
// is ordered by table index and the key set is strictly ascending.
type Database struct {
	data    []byte
	entries []Entry
	index   map[uint32]int
}

// Parse builds a Database from a labels.db buffer. The buffer is copied,
// so the caller remains free to reuse or modify its slice. Parse fails
// with a FormatError when header verification fails or the buffer is
// shorter than the data start offset.
func Parse(data []byte) (*Database, error) {
	owned := make([]byte, len(data))
	copy(owned, data)
	return parseBuffer(owned)
}

// parseBuffer builds the view over a buffer the database takes ownership of.
func parseBuffer(data []byte) (*Database, error) {
	if err := layout.VerifyHeader(data); err != nil {
		return nil, err
	}
	if len(data) < layout.DataStart {
		return nil, errdefs.NewFormatError("file too short", "%d bytes, data starts at %d", len(data), layout.DataStart)
	}

	// The entry count is not stored in the file: it is derived from the
	// file size, clamped by an early table sentinel.
	sizeCount := (len(data) - layout.DataStart) / layout.SlotSize
	if sizeCount > layout.MaxEntries {
		sizeCount = layout.MaxEntries
	}

	db := &Database{
		data:  data,
		index: make(map[uint32]int, sizeCount),
	}
	for idx := 0; idx < sizeCount; idx++ {
		key := binary.LittleEndian.Uint32(data[layout.TableOffset(idx):])
		if key == layout.Sentinel {
			break
		}
		db.entries = append(db.entries, Entry{
			Key:    key,
			Index:  idx,
			Offset: layout.SlotOffset(idx),
		})
		db.index[key] = idx
	}

	return db, nil
}

// Count returns the number of entries.
func (db *Database) Count() int {
	return len(db.entries)
}

// Keys returns the ordered key list.
func (db *Database) Keys() []uint32 {
	keys := make([]uint32, len(db.entries))
	for i, entry := range db.entries {
		keys[i] = entry.Key
	}
	return keys
}

// Has reports whether key is present.
func (db *Database) Has(key uint32) bool {
	_, ok := db.index[key]
	return ok
}

// IndexOf returns the table index of key.
func (db *Database) IndexOf(key uint32) (int, bool) {
	idx, ok := db.index[key]
	return idx, ok
}

// Image returns a copy of the raw slot-ordered pixel payload for key,
// excluding the slot padding.
func (db *Database) Image(key uint32) ([]byte, error) {
	idx, ok := db.index[key]
	if !ok {
		return nil, errdefs.ErrNotFound
	}
	off := layout.SlotOffset(idx)
	image := make([]byte, layout.ImageSize)
	copy(image, db.data[off:off+layout.ImageSize])
	return image, nil
}

// Slot returns a copy of the full 25,600-byte slot for key, padding included.
func (db *Database) Slot(key uint32) ([]byte, error) {
	idx, ok := db.index[key]
	if !ok {
		return nil, errdefs.ErrNotFound
	}
	off := layout.SlotOffset(idx)
	slot := make([]byte, layout.SlotSize)
	copy(slot, db.data[off:off+layout.SlotSize])
	return slot, nil
}

// Bytes returns a copy of the whole backing buffer. The copy is the safe
// default: the returned slice shares nothing with the Database.
func (db *Database) Bytes() []byte {
	data := make([]byte, len(db.data))
	copy(data, db.data)
	return data
}

// Size returns the backing buffer length in bytes.
func (db *Database) Size() int64 {
	return int64(len(db.data))
}

// Digest returns the sha256 digest of the backing buffer, used as the
// snapshot object key by the backup backends.
func (db *Database) Digest() digest.Digest {
	return digest.FromBytes(db.data)
}

// TableBytes returns a copy of the raw ID table region, sentinel padding
// included. Quick comparison works on these bytes alone.
func (db *Database) TableBytes() []byte {
	table := make([]byte, layout.TableEnd-layout.TableStart)
	copy(table, db.data[layout.TableStart:layout.TableEnd])
	return table
}
