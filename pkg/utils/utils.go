// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultRetryAttempts = 3
const defaultRetryInterval = time.Second * 2

// WithRetry runs op up to three times, pausing between attempts. Used by
// the backup backends where transient storage errors are expected.
func WithRetry(op func() error) error {
	var err error
	attempts := defaultRetryAttempts
	for attempts > 0 {
		attempts--
		if err != nil {
			logrus.Warnf("Retry due to error: %s", err)
			time.Sleep(defaultRetryInterval)
		}
		if err = op(); err == nil {
			break
		}
	}
	return err
}

// FormatKey renders a cartridge ID the way it is displayed everywhere:
// eight uppercase hex digits.
func FormatKey(key uint32) string {
	return fmt.Sprintf("%08X", key)
}

// ParseKey accepts a cartridge ID as hex digits, with or without a "0x"
// prefix.
func ParseKey(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	key, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid cartridge ID %q: %s", s, err)
	}
	return uint32(key), nil
}
