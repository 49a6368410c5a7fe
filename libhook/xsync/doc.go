// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides the initialize-once cells used to publish resolved
// addresses from the host runtime to hook bodies.
package xsync // import "github.com/modhook/modhook/libhook/xsync"
