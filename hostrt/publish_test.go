// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostrt

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/modhook/modhook/libhook/xsync"
)

func TestPublishOnce(t *testing.T) {
	var slot xsync.Slot[uintptr]
	Publish(&slot, 0x1000, "first")
	Publish(&slot, 0x2000, "second")
	assert.Equal(t, uintptr(0x1000), slot.MustGet())
}

func TestBoolArg(t *testing.T) {
	assert.Equal(t, uintptr(1), BoolArg(true))
	assert.Equal(t, uintptr(0), BoolArg(false))
}

func TestHostLogHook(t *testing.T) {
	type line struct {
		msg   string
		color uint32
	}
	var got []line
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(NewHostLogHook(func(msg string, color uint32) {
		got = append(got, line{msg, color})
	}))

	logger.Info("ready")
	logger.Warn("careful")
	logger.Error("broken")
	logger.Debug("hidden")

	assert.Equal(t, []line{
		{"level=info msg=ready", ColorInfo},
		{"level=warning msg=careful", ColorWarning},
		{"level=error msg=broken", ColorError},
	}, got)
}
