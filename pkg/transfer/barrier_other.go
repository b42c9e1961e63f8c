// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package transfer

import (
	"os"
)

func barrier(f *os.File) error {
	return f.Sync()
}
