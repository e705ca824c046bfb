// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooktool

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/loggo"
)

// Logger is the subset of Client used by LogWriter.
type Logger interface {
	JujuLog(ctx context.Context, level, msg string) error
}

// LogWriter is a loggo.Writer that sends entries to the unit log with
// juju-log.
type LogWriter struct {
	logger Logger
}

// NewLogWriter returns a LogWriter sending entries through logger.
func NewLogWriter(logger Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

// Write is part of the loggo.Writer interface.
func (w *LogWriter) Write(entry loggo.Entry) {
	// Entries from this package would recurse through juju-log.
	if strings.HasPrefix(entry.Module, "juju.vsphere.hooktool") {
		return
	}
	msg := fmt.Sprintf("%s %s", entry.Module, entry.Message)
	// There is nowhere left to report a failure to log.
	_ = w.logger.JujuLog(context.Background(), entry.Level.String(), msg)
}
