// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostrt // import "github.com/modhook/modhook/hostrt"

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Host logger colors, ARGB.
const (
	ColorInfo    uint32 = 0xFF32CD32 // LimeGreen
	ColorWarning uint32 = 0xFFF4A460 // SandyBrown
	ColorError   uint32 = 0xFFFF0000 // Red
)

// HostLogHook forwards log entries to the host logger.
type HostLogHook struct {
	write     func(msg string, color uint32)
	formatter log.Formatter
}

// NewHostLogHook returns a hook passing each formatted entry to write.
func NewHostLogHook(write func(msg string, color uint32)) *HostLogHook {
	return &HostLogHook{
		write: write,
		formatter: &log.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: true,
		},
	}
}

// NewNativeLogHook forwards entries to the host logger function pointer fn.
func NewNativeLogHook(fn uintptr) *HostLogHook {
	return NewHostLogHook(func(msg string, color uint32) {
		callLogger(fn, msg, color)
	})
}

func levelColor(level log.Level) uint32 {
	switch level {
	case log.WarnLevel:
		return ColorWarning
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return ColorError
	}
	return ColorInfo
}

func (h *HostLogHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *HostLogHook) Fire(e *log.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.write(strings.TrimRight(string(b), "\n"), levelColor(e.Level))
	return nil
}
