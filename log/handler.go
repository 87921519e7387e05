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

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelCrit:  "CRIT",
}

func levelName(l slog.Level) string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return l.String()
}

var levelColor = map[slog.Level]int{
	LevelTrace: 90, // grey
	LevelDebug: 36, // cyan
	LevelInfo:  32, // green
	LevelWarn:  33, // yellow
	LevelError: 31, // red
	LevelCrit:  35, // magenta
}

// terminalHandler formats records for humans, the way go-ethereum's glog terminal
// handler does: "LEVEL [timestamp] message key=value ...", coloured when the output
// stream is a terminal.
type terminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	useColor bool
	level    slog.Level
	attrs    []slog.Attr
}

// NewTerminalHandler creates a slog.Handler that writes human-readable, optionally
// coloured log lines to wr. If useColor is true and wr looks like a real terminal (or
// the caller forces it), ANSI colour codes are used via mattn/go-colorable.
func NewTerminalHandler(wr io.Writer, useColor bool) slog.Handler {
	return NewTerminalHandlerWithLevel(wr, LevelInfo, useColor)
}

// NewTerminalHandlerWithLevel is like NewTerminalHandler but also sets the minimum
// level emitted by the handler.
func NewTerminalHandlerWithLevel(wr io.Writer, level slog.Level, useColor bool) slog.Handler {
	if useColor {
		wr = colorable.NewNonColorable(wr)
	}
	return &terminalHandler{wr: wr, useColor: useColor, level: level}
}

// IsTerminal reports whether the given file descriptor is attached to a terminal,
// matching go-ethereum's heuristic for deciding whether to enable colour by default.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd)
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	buf := new(strings.Builder)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	lvl := levelName(r.Level)
	if h.useColor {
		if c, ok := levelColor[r.Level]; ok {
			lvl = fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, lvl)
		}
	}
	fmt.Fprintf(buf, "%-5s[%s] %s", lvl, ts.Format("01-02|15:04:05.000"), r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(buf, " %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(buf, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.wr, buf.String())
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *terminalHandler) WithGroup(_ string) slog.Handler {
	// Groups are not meaningful for the flat terminal layout; fall back to the
	// receiver unchanged, matching go-ethereum's handler.
	return h
}

// JSONHandler creates a slog.Handler emitting one JSON object per record, for
// machine-consumed log shipping.
func JSONHandler(wr io.Writer) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{
		Level: LevelTrace,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(lvl))
				}
			}
			return a
		},
	})
}

// caller returns the call stack frame for the given skip, used to attribute a log
// record to its originating component.
func caller(skip int) stack.Call {
	return stack.Caller(skip)
}
