// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package layout defines the fixed binary layout of labels.db files and
// implements header construction, header verification and the raw pixel
// channel-order conversion. Everything here is bit-exact and little-endian.
package layout

import (
	"bytes"
	"encoding/binary"

	"github.com/retrolabs/labeldb/pkg/errdefs"
)

const (
	// HeaderSize is the fixed header region at the start of the file.
	HeaderSize = 0x100

	// MagicByte sits at offset 0 of every valid database.
	MagicByte = 0x07

	// Identifier is the 11-byte ASCII identifier at offset 1.
	Identifier = "GAMELABELDB"

	// FileType is the ASCII file-type string at offset 0x20.
	FileType = "labels.db"

	// Version is the format version written at offset 0x40, little-endian.
	Version = uint32(0x00020000)

	identifierOffset = 0x01
	fileTypeOffset   = 0x20
	versionOffset    = 0x40

	// TableStart and TableEnd bound the ID table region.
	TableStart = 0x100
	TableEnd   = 0x4100

	// KeySize is the byte width of one table entry.
	KeySize = 4

	// MaxEntries is the table capacity.
	MaxEntries = (TableEnd - TableStart) / KeySize

	// Sentinel marks unused table capacity and the early end of the table.
	Sentinel = uint32(0xFFFFFFFF)

	// DataStart is the offset of the first image slot.
	DataStart = TableEnd

	// Image geometry: 74x86 pixels, 4 bytes per pixel, channel order B,G,R,A.
	ImageWidth    = 74
	ImageHeight   = 86
	BytesPerPixel = 4

	// ImageSize is the raw pixel payload size of one slot.
	ImageSize = ImageWidth * ImageHeight * BytesPerPixel

	// SlotSize is the full per-entry region: pixel payload plus padding.
	SlotSize = 25600

	// SlotPadding trails the pixel payload within each slot, filled with PadByte.
	SlotPadding = SlotSize - ImageSize

	// PadByte fills slot padding and the unused tail of freshly
	// allocated regions.
	PadByte = 0xFF
)

// MakeHeader returns a freshly built, valid 256-byte header.
func MakeHeader() []byte {
	header := make([]byte, HeaderSize)
	header[0] = MagicByte
	copy(header[identifierOffset:], Identifier)
	copy(header[fileTypeOffset:], FileType)
	binary.LittleEndian.PutUint32(header[versionOffset:], Version)
	return header
}

// VerifyHeader checks the structural validity of a database header and
// returns a FormatError naming the first failed check. The version field
// is not checked beyond being present inside the header region.
func VerifyHeader(data []byte) error {
	if len(data) < HeaderSize {
		return errdefs.NewFormatError("header too short", "%d bytes, need %d", len(data), HeaderSize)
	}
	if data[0] != MagicByte {
		return errdefs.NewFormatError("bad magic byte", "0x%02X, want 0x%02X", data[0], MagicByte)
	}
	if !bytes.Equal(data[identifierOffset:identifierOffset+len(Identifier)], []byte(Identifier)) {
		return errdefs.NewFormatError("bad identifier", "%q", data[identifierOffset:identifierOffset+len(Identifier)])
	}
	if !bytes.Equal(data[fileTypeOffset:fileTypeOffset+len(FileType)], []byte(FileType)) {
		return errdefs.NewFormatError("bad file type", "%q", data[fileTypeOffset:fileTypeOffset+len(FileType)])
	}
	return nil
}

// HeaderVersion reads the version field. Only meaningful after VerifyHeader.
func HeaderVersion(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[versionOffset:])
}

// TableOffset returns the byte offset of table entry idx.
func TableOffset(idx int) int64 {
	return TableStart + int64(idx)*KeySize
}

// SlotOffset returns the byte offset of the image slot for table entry idx.
func SlotOffset(idx int) int64 {
	return DataStart + int64(idx)*SlotSize
}

// PixelsToSlotOrder converts an RGBA pixel buffer to the slot channel
// order (BGRA) by swapping bytes 0 and 2 of every pixel. The conversion
// is its own inverse. The input is not modified.
func PixelsToSlotOrder(pixels []byte) []byte {
	converted := make([]byte, len(pixels))
	copy(converted, pixels)
	for off := 0; off+BytesPerPixel <= len(converted); off += BytesPerPixel {
		converted[off], converted[off+2] = converted[off+2], converted[off]
	}
	return converted
}

// SlotOrderToPixels converts a slot-ordered (BGRA) buffer back to RGBA.
// It is the same byte swap as PixelsToSlotOrder.
func SlotOrderToPixels(slotPixels []byte) []byte {
	return PixelsToSlotOrder(slotPixels)
}
