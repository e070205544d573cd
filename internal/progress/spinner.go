// Package progress shows transient activity indicators on the terminal while blocking operations run.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var frames = []string{
	"( ●    )",
	"(  ●   )",
	"(   ●  )",
	"(    ● )",
	"(     ●)",
	"(    ● )",
	"(   ●  )",
	"(  ●   )",
}

const tickInterval = 100 * time.Millisecond

// Indicator is started before a blocking operation and stopped once it returns.
type Indicator interface {
	Start(message string)
	Stop()
}

var (
	_ Indicator = &Spinner{}
	_ Indicator = Nop{}
)

// Spinner animates a message on a terminal. When the output is not a terminal the message is not printed at all so
// that piped output only contains results.
type Spinner struct {
	mu      sync.Mutex
	out     io.Writer
	tty     bool
	message string
	done    chan struct{}
	stopped chan struct{}
}

func NewSpinner(out *os.File) *Spinner {
	if out == nil {
		out = os.Stderr
	}
	return &Spinner{
		out: out,
		tty: term.IsTerminal(int(out.Fd())),
	}
}

func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tty || s.done != nil {
		return
	}
	s.message = message
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.animate(s.done, s.stopped)
}

func (s *Spinner) Stop() {
	s.mu.Lock()
	done, stopped := s.done, s.stopped
	s.done, s.stopped = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	<-stopped
}

func (s *Spinner) animate(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	frameColor := color.New(color.FgCyan)
	for i := 0; ; i++ {
		s.mu.Lock()
		line := fmt.Sprintf("\r%s %s", frameColor.Sprint(frames[i%len(frames)]), s.message)
		s.mu.Unlock()
		fmt.Fprint(s.out, line)

		select {
		case <-done:
			fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", len(frames[0])+1+len(s.message)))
			return
		case <-ticker.C:
		}
	}
}

// Nop does not display anything.
type Nop struct{}

func (Nop) Start(string) {}
func (Nop) Stop()        {}
