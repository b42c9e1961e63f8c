// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "00000001", FormatKey(1))
	assert.Equal(t, "DEADBEEF", FormatKey(0xDEADBEEF))
	assert.Equal(t, "FFFFFFFF", FormatKey(0xFFFFFFFF))
}

func TestParseKey(t *testing.T) {
	for _, input := range []string{"deadbeef", "DEADBEEF", "0xDEADBEEF", "0Xdeadbeef"} {
		key, err := ParseKey(input)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xDEADBEEF), key)
	}

	_, err := ParseKey("not-hex")
	assert.Error(t, err)
	_, err = ParseKey("100000000")
	assert.Error(t, err)
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		if attempts < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryGivesUp(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		return fmt.Errorf("persistent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
