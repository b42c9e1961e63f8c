// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package errdefs defines the error taxonomy shared by the database,
// comparator and syncer packages. Callers are expected to test against
// these values with errors.Is / errors.As after unwrapping.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an update or delete referenced a key that
	// is not present in the database.
	ErrNotFound = errors.New("key not found")

	// ErrDuplicateKey indicates an add or create referenced a key that
	// already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidSize indicates an image payload whose length is not
	// exactly the raw slot pixel byte count.
	ErrInvalidSize = errors.New("invalid image payload size")

	// ErrTableFull indicates the ID table already holds the maximum
	// number of entries.
	ErrTableFull = errors.New("ID table is full")

	// ErrReservedKey indicates an attempt to store the table terminator
	// value as a key. 0xFFFFFFFF marks unused table positions and can
	// never name an entry.
	ErrReservedKey = errors.New("reserved key")
)

// FormatError reports a failed structural check on a labels.db buffer.
// Check names the check that failed, Detail carries the observed value.
// Format errors are fatal and never retried.
type FormatError struct {
	Check  string
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid database format: %s", e.Check)
	}
	return fmt.Sprintf("invalid database format: %s: %s", e.Check, e.Detail)
}

// NewFormatError creates a FormatError for the named check.
func NewFormatError(check, detailFormat string, args ...interface{}) *FormatError {
	return &FormatError{
		Check:  check,
		Detail: fmt.Sprintf(detailFormat, args...),
	}
}

// IsFormatError returns whether any error in err's chain is a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
