package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"toolpin/internal/tools"
)

const lineInterval = 100 * time.Millisecond

// EnsureLine is the progress display for a single `ensure`: one spinner line
// on stderr naming the tool and how long it has been resolving. The line is
// erased when the tool finishes so stdout carries only the resolved path.
type EnsureLine struct {
	w io.Writer

	mu      sync.Mutex
	label   string
	since   time.Time
	running bool

	quit   chan struct{}
	exited chan struct{}
	once   sync.Once
}

var _ tools.Observer = (*EnsureLine)(nil)

// NewEnsureLine returns an idle line; it starts drawing on Started.
func NewEnsureLine(w io.Writer) *EnsureLine {
	return &EnsureLine{w: w, quit: make(chan struct{}), exited: make(chan struct{})}
}

// Started implements tools.Observer.
func (l *EnsureLine) Started(spec tools.ToolSpec) {
	l.mu.Lock()
	l.label = fmt.Sprintf("ensuring %s %s", spec.Name, spec.Version)
	l.since = time.Now()
	first := !l.running
	l.running = true
	l.mu.Unlock()
	if first {
		go l.draw()
	}
}

// Finished implements tools.Observer.
func (l *EnsureLine) Finished(tools.Result) {
	l.Stop()
}

// Stop erases the line. It is safe to call more than once.
func (l *EnsureLine) Stop() {
	l.once.Do(func() {
		close(l.quit)
		l.mu.Lock()
		running := l.running
		l.mu.Unlock()
		if !running {
			return
		}
		<-l.exited
		fmt.Fprint(l.w, "\r\033[K")
	})
}

func (l *EnsureLine) draw() {
	defer close(l.exited)
	ticker := time.NewTicker(lineInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			l.mu.Lock()
			label, since := l.label, l.since
			l.mu.Unlock()
			fmt.Fprintf(l.w, "\r\033[K%s %s %s", spinnerFrames[frame%len(spinnerFrames)], label, formatDuration(time.Since(since)))
		}
	}
}
