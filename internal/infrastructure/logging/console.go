package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// consoleTimeFormat is the timestamp layout for console lines.
const consoleTimeFormat = "2006-01-02T15:04:05"

// consoleHandler renders records as single coloured lines:
//
//	2026-01-02T15:04:05 | INFO  | connected broker=ssl://host:8883
//
// Colours are dropped automatically when the output is not a terminal.
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newConsoleHandler(out io.Writer, level slog.Leveler) *consoleHandler {
	return &consoleHandler{
		mu:    &sync.Mutex{},
		out:   out,
		level: level,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString("%-5s", level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString("%-5s", level)
	case r.Level >= slog.LevelInfo:
		level = color.BlueString("%-5s", level)
	default:
		level = color.MagentaString("%-5s", level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %s",
		color.GreenString(r.Time.Format(consoleTimeFormat)),
		level,
		r.Message,
	)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, attr := range h.attrs {
		b.WriteString(color.CyanString(" %s=%v", attr.Key, attr.Value))
	}
	r.Attrs(func(attr slog.Attr) bool {
		b.WriteString(color.CyanString(" %s%s=%v", prefix, attr.Key, attr.Value))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, attr := range attrs {
		merged = append(merged, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}

	return &consoleHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  merged,
		groups: h.groups,
	}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)

	return &consoleHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: groups,
	}
}
