package reporter

import (
	"fmt"
	"io"
	"sync"
)

// Diagnostics is the user-visible surface for capability errors (missing
// orientation sensor, missing vibration motor). It only ever shows the last
// message.
type Diagnostics interface {
	Show(msg string)
}

// Panel keeps the last diagnostic message and echoes it to a writer.
type Panel struct {
	mu   sync.Mutex
	last string
	w    io.Writer
}

// NewPanel creates a Panel writing to w; w may be nil.
func NewPanel(w io.Writer) *Panel {
	return &Panel{w: w}
}

func (p *Panel) Show(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = msg
	if p.w != nil {
		fmt.Fprintf(p.w, "[diagnostic] %s\n", msg)
	}
}

// Last returns the last shown message, or "" if none.
func (p *Panel) Last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
