// Package progress reports the advance of pull and push runs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Callback receives one update per processed commit. total is 0 when the
// number of commits is not known upfront (pull streams).
type Callback func(op string, current, total int, message string)

// Noop is a no-op callback for default behavior.
func Noop(op string, current, total int, message string) {}

// Progress tracks one operation and forwards updates to a Callback.
type Progress struct {
	Op      string
	Total   int
	current int
	cb      Callback
}

// New creates a Progress. A nil cb is replaced by Noop.
func New(op string, total int, cb Callback) *Progress {
	if cb == nil {
		cb = Noop
	}
	return &Progress{Op: op, Total: total, cb: cb}
}

// Step advances by one and reports message.
func (p *Progress) Step(message string) {
	p.current++
	p.cb(p.Op, p.current, p.Total, message)
}

// Current returns the number of steps taken.
func (p *Progress) Current() int {
	return p.current
}

// Terminal renders updates as a single rewritten line.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	lastLen int
	dirty   bool
}

// NewTerminal returns a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Callback returns the Callback that draws on this terminal.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.render(line(op, current, total, message))
	}
}

func line(op string, current, total int, message string) string {
	var s string
	if total > 0 {
		const width = 20
		filled := width * current / total
		if filled > width {
			filled = width
		}
		s = fmt.Sprintf("%s [%s%s] %d/%d", op, strings.Repeat("=", filled), strings.Repeat(" ", width-filled), current, total)
	} else {
		s = fmt.Sprintf("%s... %d", op, current)
	}
	if message != "" {
		s += " " + message
	}
	return s
}

func (t *Terminal) render(s string) {
	pad := ""
	if t.lastLen > len(s) {
		pad = strings.Repeat(" ", t.lastLen-len(s))
	}
	fmt.Fprint(t.w, "\r"+s+pad)
	t.lastLen = len(s)
	t.dirty = true
}

// Done terminates the line, if anything was drawn.
func (t *Terminal) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		fmt.Fprintln(t.w)
		t.dirty = false
		t.lastLen = 0
	}
}
