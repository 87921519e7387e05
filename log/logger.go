// Copyright 2019 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides structured, levelled logging built on top of log/slog, in the
// style of go-ethereum's own log package. New derives a Logger with extra context from
// the root logger; the shredder uses one tagged component=shred rather than writing to
// the root logger directly. The hash-map and runtime packages do not log.
package log

import (
	"context"
	"log/slog"
)

// Level mirrors go-ethereum's five-level scheme, trace through crit, mapped onto the
// wider slog.Level range so the two interoperate.
const (
	LevelTrace slog.Level = slog.Level(-8)
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelCrit  slog.Level = slog.Level(12)
)

// Logger is the interface every engine component depends on.
type Logger interface {
	// New returns a new Logger with additional context derived from the given
	// key/value pairs appended to every record.
	New(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)

	// Log emits a record at the given level using the given skip depth for caller
	// attribution.
	Log(level slog.Level, msg string, ctx ...any)

	// Enabled reports whether a record at the given level would be emitted.
	Enabled(level slog.Level) bool

	// Handler returns the underlying slog.Handler.
	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

// NewLogger wraps an slog.Handler as a Logger.
func NewLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Handler() slog.Handler { return l.inner.Handler() }

func (l *logger) Enabled(level slog.Level) bool {
	return l.inner.Enabled(context.Background(), level)
}

func (l *logger) Log(level slog.Level, msg string, ctx ...any) {
	if !l.Enabled(level) {
		return
	}
	l.inner.Log(context.Background(), level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.Log(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.Log(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.Log(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.Log(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.Log(LevelError, msg, ctx...) }
func (l *logger) Crit(msg string, ctx ...any)  { l.Log(LevelCrit, msg, ctx...) }

// New creates a new Logger whose context is derived from the root logger plus the
// given key/value pairs. Engine components typically call this once at construction,
// e.g. log.New("component", "shredder", "stream", streamID).
func New(ctx ...any) Logger {
	return Root().New(ctx...)
}
