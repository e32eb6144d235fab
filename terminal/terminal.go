// Package terminal handles user interrupts and prints simulation reports.
package terminal

import (
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"

	"pipelined.dev/chain/log"
)

// Terminal counts user interrupts and renders reports of points. First
// interrupt stops the current point, second one stops the sweep.
type Terminal struct {
	out      io.Writer
	log      logrus.FieldLogger
	markdown bool

	mu          sync.Mutex
	interrupted chan struct{}
	interrupt   bool
	count       int
	over        bool
	points      table.Writer
}

// Option configures a terminal.
type Option func(*Terminal)

// WithLogger sets logger for progress lines.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Terminal) {
		t.log = l
	}
}

// WithMarkdown renders tables in markdown.
func WithMarkdown() Option {
	return func(t *Terminal) {
		t.markdown = true
	}
}

// New returns a terminal which writes tables to out.
func New(out io.Writer, options ...Option) *Terminal {
	t := &Terminal{
		out:         out,
		log:         log.GetLogger(),
		interrupted: make(chan struct{}),
	}
	for _, option := range options {
		option(t)
	}
	t.points = t.newTable()
	t.points.AppendHeader(legend)
	return t
}

// Listen translates SIGINT into interrupts until returned function is
// called.
func (t *Terminal) Listen() func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range signals {
			t.Signal()
		}
	}()
	return func() {
		signal.Stop(signals)
		close(signals)
		<-done
	}
}

// Signal registers a single interrupt.
func (t *Terminal) Signal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	if !t.interrupt {
		t.interrupt = true
		close(t.interrupted)
	}
	if t.count >= 2 {
		t.over = true
	}
	t.log.WithField("interrupts", t.count).Info("interrupted")
}

// Interrupted returns a channel which is closed when the current point is
// interrupted.
func (t *Terminal) Interrupted() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupted
}

// IsInterrupt returns true if the current point is interrupted.
func (t *Terminal) IsInterrupt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupt
}

// IsOver returns true if user interrupted twice.
func (t *Terminal) IsOver() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.over
}

// Reset clears interrupt of the current point. Number of interrupts is
// kept.
func (t *Terminal) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interrupt {
		t.interrupt = false
		t.interrupted = make(chan struct{})
	}
}

func (t *Terminal) newTable() table.Writer {
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	w := table.NewWriter()
	w.SetStyle(style)
	return w
}

func (t *Terminal) render(w table.Writer) string {
	if t.markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}
