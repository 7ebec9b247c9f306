// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tntlog is a thin wrapper around github.com/sirupsen/logrus,
// giving every other layer of tntgo a shared, structured logging handle
// without coupling them directly to logrus's API surface. The codec and
// buffer packages never log (hot path). conn.New and client.WithLogger
// accept a Logger and store it; no tntgo package writes log entries
// through it.
package tntlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the handle every package takes a dependency on. The zero
// value is not usable; construct one with New or Discard.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger writing to w at the given level, JSON-formatted
// the way a long-running service expects its logs collected.
func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})
	return Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops everything, for callers that
// don't want tntgo's internals to log at all (e.g. library embedders
// with their own logging pipeline who haven't wired tntlog through yet).
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return Logger{entry: logrus.NewEntry(l)}
}

// WithField returns a derived Logger carrying one additional structured
// field, mirroring logrus.Entry.WithField.
func (l Logger) WithField(key string, value any) Logger {
	return Logger{entry: l.entry.WithField(key, value)}
}

// WithError returns a derived Logger carrying err under the
// conventional "error" field.
func (l Logger) WithError(err error) Logger {
	return Logger{entry: l.entry.WithError(err)}
}

func (l Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
