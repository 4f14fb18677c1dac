// Package console renders received messages and CLI notices for a terminal.
package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/nerrad567/mqtt-journal/internal/journal"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	separator  = "------------------------------------------------------------"
)

// Printer writes one block per received message.
//
// Thread Safety:
//   - Safe for concurrent use; each block is written under a mutex.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	header  *color.Color
	time    *color.Color
	topic   *color.Color
	qos     *color.Color
	retain  *color.Color
	label   *color.Color
	content *color.Color

	success *color.Color
	info    *color.Color
	warn    *color.Color
	failure *color.Color
}

// New creates a Printer writing to out. With useColor false no escape
// sequences are emitted.
func New(out io.Writer, useColor bool) *Printer {
	p := &Printer{
		out:     out,
		header:  color.New(color.BgBlue, color.FgWhite),
		time:    color.New(color.FgCyan),
		topic:   color.New(color.FgMagenta),
		qos:     color.New(color.FgGreen),
		retain:  color.New(color.FgYellow),
		label:   color.New(color.FgWhite),
		content: color.New(color.FgHiWhite),
		success: color.New(color.FgGreen),
		info:    color.New(color.FgBlue),
		warn:    color.New(color.FgYellow),
		failure: color.New(color.FgRed),
	}

	for _, c := range []*color.Color{
		p.header, p.time, p.topic, p.qos, p.retain, p.label, p.content,
		p.success, p.info, p.warn, p.failure,
	} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// OnMessage prints a message block. It satisfies session.Observer.
func (p *Printer) OnMessage(seq uint64, e journal.Entry) {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(p.header.Sprintf(" New Message #%d ", seq))
	b.WriteString("\n")
	b.WriteString(p.time.Sprintf("Time: %s", e.Timestamp.Format(timeLayout)))
	b.WriteString("\n")
	b.WriteString(p.topic.Sprintf("Topic: %s", e.Topic))
	b.WriteString("\n")
	b.WriteString(p.qos.Sprintf("QoS: %d", e.QoS))
	b.WriteString("\n")
	b.WriteString(p.retain.Sprintf("Retain: %t", e.Retain))
	b.WriteString("\n")
	b.WriteString(p.label.Sprint("Message Content:"))
	b.WriteString("\n")
	b.WriteString(p.content.Sprint(FormatPayload(e.Payload)))
	b.WriteString("\n")
	b.WriteString(separator)
	b.WriteString("\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, b.String()) //nolint:errcheck // terminal output
}

// FormatPayload renders a payload for display: JSON is re-indented by two
// spaces, other UTF-8 text is shown as-is and anything else is summarised
// as "[Binary Data - N bytes]".
func FormatPayload(payload []byte) string {
	if !utf8.Valid(payload) {
		return fmt.Sprintf("[Binary Data - %d bytes]", len(payload))
	}
	if json.Valid(payload) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err == nil {
			return buf.String()
		}
	}
	return string(payload)
}

// Success prints a green "✓" notice.
func (p *Printer) Success(format string, args ...any) {
	p.line(p.success, "✓ "+format, args...)
}

// Info prints a blue "ℹ" notice.
func (p *Printer) Info(format string, args ...any) {
	p.line(p.info, "ℹ "+format, args...)
}

// Warn prints a yellow "⚠" notice.
func (p *Printer) Warn(format string, args ...any) {
	p.line(p.warn, "⚠ "+format, args...)
}

// Error prints a red "✗" notice.
func (p *Printer) Error(format string, args ...any) {
	p.line(p.failure, "✗ "+format, args...)
}

func (p *Printer) line(c *color.Color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = c.Fprintln(p.out, fmt.Sprintf(format, args...)) //nolint:errcheck // terminal output
}
