// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import "github.com/sirupsen/logrus"

// Logger is the structured logging interface threaded through the client
// driver and the server, mirroring how docker/model-runner's scheduler
// accepts a logrus.FieldLogger rather than a concrete *logrus.Logger.
type Logger = logrus.FieldLogger

// NewLogger returns a logrus-backed Logger at the given level, with
// component already attached as a field.
func NewLogger(component string, level logrus.Level) Logger {
	l := logrus.New()
	l.SetLevel(level)
	return l.WithField("component", component)
}

// DiscardLogger returns a Logger that drops everything, for callers (tests,
// library embedders) that don't want pdiffcopy's internal logging.
func DiscardLogger() Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l.WithField("component", "pdiffcopy")
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
