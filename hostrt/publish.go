// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostrt // import "github.com/modhook/modhook/hostrt"

import (
	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/libhook/xsync"
)

// Publish stores a value handed over by the host. Only the first
// publication of a slot takes effect.
func Publish[T any](slot *xsync.Slot[T], v T, name string) {
	if err := slot.Set(v); err != nil {
		log.Warnf("Ignoring second publication of %s", name)
		return
	}
	log.Debugf("Published %s", name)
}

// BoolArg passes a bool in an integer register.
func BoolArg(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}
