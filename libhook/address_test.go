// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressAdd(t *testing.T) {
	assert.Equal(t, Address(0x1007), Address(0x1000).Add(7))
	assert.Equal(t, Address(0xff9), Address(0x1000).Add(-7))
	assert.Equal(t, "0x1000", Address(0x1000).String())
}

func TestRange(t *testing.T) {
	r := Range{Start: 0x1000, End: 0x2000}
	assert.True(t, r.Contains(0x1000))
	assert.True(t, r.Contains(0x1fff))
	assert.False(t, r.Contains(0x2000))
	assert.False(t, r.Contains(0xfff))
	assert.Equal(t, uint64(0x1000), r.Size())
	assert.Equal(t, uint64(0), Range{Start: 5, End: 5}.Size())
}
