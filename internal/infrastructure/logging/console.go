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

const consoleTimeLayout = "2006-01-02T15:04:05.000"

// consoleHandler renders "time | LEVEL | message key=value ..." lines for
// interactive use.
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level

	// prefix holds pre-rendered WithAttrs output; group is the dotted key
	// prefix from WithGroup.
	prefix string
	group  string

	time, msg, key *color.Color
	levels         map[slog.Level]*color.Color
}

func newConsoleHandler(w io.Writer, level slog.Level, colored bool) *consoleHandler {
	h := &consoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		time:  color.New(color.FgGreen),
		msg:   color.New(color.FgCyan),
		key:   color.New(color.Faint),
		levels: map[slog.Level]*color.Color{
			slog.LevelDebug: color.New(color.FgMagenta),
			slog.LevelInfo:  color.New(color.FgBlue),
			slog.LevelWarn:  color.New(color.FgYellow),
			slog.LevelError: color.New(color.FgRed, color.Bold),
		},
	}

	all := []*color.Color{h.time, h.msg, h.key}
	for _, c := range h.levels {
		all = append(all, c)
	}
	for _, c := range all {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return h
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(h.time.Sprint(r.Time.Format(consoleTimeLayout)))
	b.WriteString(" | ")
	b.WriteString(h.levelColor(r.Level).Sprintf("%-5s", r.Level.String()))
	b.WriteString(" | ")
	b.WriteString(h.msg.Sprint(r.Message))
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		h.appendAttr(&b, h.group, a)
	}
	clone := *h
	clone.prefix = h.prefix + b.String()
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func (h *consoleHandler) levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return h.levels[slog.LevelError]
	case l >= slog.LevelWarn:
		return h.levels[slog.LevelWarn]
	case l >= slog.LevelInfo:
		return h.levels[slog.LevelInfo]
	default:
		return h.levels[slog.LevelDebug]
	}
}

// appendAttr writes " key=value", flattening groups into dotted keys.
func (h *consoleHandler) appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub = joinKey(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, sub, ga)
		}
		return
	}

	value := a.Value.String()
	if strings.ContainsAny(value, " \t\n\"=") {
		value = fmt.Sprintf("%q", value)
	}
	b.WriteByte(' ')
	b.WriteString(h.key.Sprint(joinKey(group, a.Key) + "="))
	b.WriteString(value)
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}
