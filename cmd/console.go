package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"

	"uptofetch/internal"
)

// isTerminal reports whether fd is an interactive terminal
var isTerminal = func(fd int) bool {
	return term.IsTerminal(fd)
}

// consoleMessage is the terminal rendition of a status message. Edits go to
// out, errors to errOut, and SIGINT triggers the registered cancel callback.
type consoleMessage struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool

	mu     sync.Mutex
	failed bool
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
}

var _ internal.StatusMessage = (*consoleMessage)(nil)

func newConsoleMessage(out, errOut io.Writer, quiet bool) *consoleMessage {
	return &consoleMessage{
		out:    out,
		errOut: errOut,
		quiet:  quiet,
		notify: signal.Notify,
		stop:   signal.Stop,
	}
}

// Edit prints text. In quiet mode only the final multi-paragraph report is
// shown.
func (m *consoleMessage) Edit(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quiet && !strings.Contains(text, "\n\n") {
		return nil
	}
	_, err := fmt.Fprintln(m.out, text)
	return err
}

func (m *consoleMessage) Err(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = true
	_, err := fmt.Fprintf(m.errOut, "❌ %s\n", text)
	return err
}

// OnCancel runs fn on the first SIGINT until the returned func is called
func (m *consoleMessage) OnCancel(fn func()) func() {
	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	m.notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, canceling", sig)
			fn()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.stop(sigChan)
			close(done)
		})
	}
}

// Failed reports whether an error was reported through the message
func (m *consoleMessage) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// consoleWaitHandler asks on the terminal before waiting out the free-tier
// delay and renders the countdown.
type consoleWaitHandler struct {
	in          io.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
}

var _ internal.WaitHandler = (*consoleWaitHandler)(nil)

func newConsoleWaitHandler(in io.Reader, out io.Writer, assumeYes bool) *consoleWaitHandler {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = isTerminal(int(f.Fd()))
	}
	return &consoleWaitHandler{
		in:          in,
		out:         out,
		assumeYes:   assumeYes,
		interactive: interactive,
	}
}

// ConfirmWait accepts only "y" or "Y"; any other answer declines
func (h *consoleWaitHandler) ConfirmWait(ctx context.Context, waitSeconds int) (bool, error) {
	fmt.Fprintf(h.out, "[Uptobox] You have to wait %d seconds to generate a new link.\n", waitSeconds)
	if h.assumeYes {
		fmt.Fprintln(h.out, "[Uptobox] Waiting (--yes).")
		return true, nil
	}
	fmt.Fprintln(h.out, "[Uptobox] Do you want to wait ?")
	fmt.Fprint(h.out, "Y for yes, everything else to quit: ")

	answer := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(h.in).ReadString('\n')
		if err != nil && line == "" {
			errc <- err
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(h.out)
		return false, internal.NewCanceledError("").WithCause(ctx.Err())
	case err := <-errc:
		fmt.Fprintln(h.out)
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("read answer: %w", err)
	case line := <-answer:
		return strings.EqualFold(strings.TrimSpace(line), "y"), nil
	}
}

// Countdown overwrites the current line on a terminal; elsewhere it prints
// whole minutes and the final tick only.
func (h *consoleWaitHandler) Countdown(remaining string) {
	if h.interactive {
		fmt.Fprintf(h.out, "\r%s", remaining)
		if remaining == "00:00" {
			fmt.Fprintln(h.out)
		}
		return
	}
	if strings.HasSuffix(remaining, ":00") {
		fmt.Fprintln(h.out, remaining)
	}
}
