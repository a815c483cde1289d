package remote

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Polling bounds for marker detection. The first poll comes quickly so short
// evaluations return fast; the interval then grows toward the cap to keep
// long bulk inserts cheap on the wire.
const (
	pollInitial = 50 * time.Millisecond
	pollMax     = 500 * time.Millisecond

	captureLines = 10000
)

// consolePromptRe matches the stable IRB prompt of the long-lived Rails
// console at the end of the captured pane.
var consolePromptRe = regexp.MustCompile(`(?m)^(irb\([^)]*\)[^>\n]*>|>>)\s*$`)

// ConsoleSession drives a persistent terminal-multiplexer session on the
// remote host in which a Rails console is running. Exactly one evaluation may
// be in flight at a time; the mutex is the engine-wide serialization point
// for console access.
type ConsoleSession struct {
	transport Transport
	session   string

	mu sync.Mutex
}

// NewConsoleSession creates a session handle. The tmux session itself must
// already exist on the host with the console running inside it.
func NewConsoleSession(transport Transport, session string) *ConsoleSession {
	return &ConsoleSession{transport: transport, session: session}
}

// Ready reports whether the console shows its prompt and is not mid-command.
func (s *ConsoleSession) Ready(ctx context.Context) error {
	out, err := s.capture(ctx)
	if err != nil {
		return err
	}
	if !promptVisible(out) {
		return &Error{Kind: KindConsoleNotReady, Message: "console prompt not detected", Context: s.session}
	}
	return nil
}

// Stabilize attempts one recovery: send a no-op, wait for the prompt to
// come back. Called after timeouts or prompt loss before giving up.
func (s *ConsoleSession) Stabilize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sendLine(ctx, "nil"); err != nil {
		return err
	}

	deadline := time.Now().Add(10 * time.Second)
	interval := pollInitial
	for time.Now().Before(deadline) {
		out, err := s.capture(ctx)
		if err != nil {
			return err
		}
		if promptVisible(out) {
			return nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return &Error{Kind: KindConsoleNotReady, Message: "stabilization canceled", Err: ctx.Err(), Context: s.session}
		}
		if interval *= 2; interval > pollMax {
			interval = pollMax
		}
	}
	return &Error{Kind: KindConsoleNotReady, Message: "console did not stabilize", Context: s.session}
}

// Evaluate sends a command line into the console and polls the captured pane
// until endMarker appears, returning everything captured after the send.
// Framing and result extraction are the evaluator's concern.
func (s *ConsoleSession) Evaluate(ctx context.Context, command, endMarker string, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.capture(ctx)
	if err != nil {
		return nil, err
	}
	if !promptVisible(before) {
		return nil, &Error{Kind: KindConsoleNotReady, Message: "console prompt not detected before evaluation", Context: s.session}
	}

	if err := s.sendLine(ctx, command); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	interval := pollInitial
	for {
		out, err := s.capture(ctx)
		if err != nil {
			return nil, err
		}
		if idx := strings.LastIndex(out, endMarker); idx >= 0 {
			// Return the pane from the echoed command onward so the
			// caller sees its own framing markers.
			return []byte(out), nil
		}
		if time.Now().After(deadline) {
			return []byte(out), &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("end marker not seen within %s", timeout),
				Context: s.session,
			}
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return []byte(out), &Error{Kind: KindTransport, Message: "evaluation canceled", Err: ctx.Err(), Context: s.session}
		}
		if interval *= 2; interval > pollMax {
			interval = pollMax
		}
	}
}

// sendLine types one literal line into the session followed by Enter. The -l
// flag keeps tmux from interpreting the payload as key names.
func (s *ConsoleSession) sendLine(ctx context.Context, line string) error {
	cmd := fmt.Sprintf("tmux send-keys -t %s -l %s && tmux send-keys -t %s Enter",
		shellQuote(s.session), shellQuote(line), shellQuote(s.session))
	_, stderr, exit, err := s.transport.Run(ctx, cmd, nil, 15*time.Second)
	if err != nil {
		return err
	}
	if exit != 0 {
		return &Error{Kind: KindConsoleNotReady, Message: fmt.Sprintf("tmux send-keys exited %d: %s", exit, strings.TrimSpace(string(stderr))), Context: s.session}
	}
	return nil
}

func (s *ConsoleSession) capture(ctx context.Context) (string, error) {
	cmd := fmt.Sprintf("tmux capture-pane -p -t %s -S -%d", shellQuote(s.session), captureLines)
	stdout, stderr, exit, err := s.transport.Run(ctx, cmd, nil, 15*time.Second)
	if err != nil {
		return "", err
	}
	if exit != 0 {
		return "", &Error{Kind: KindConsoleNotReady, Message: fmt.Sprintf("tmux capture-pane exited %d: %s", exit, strings.TrimSpace(string(stderr))), Context: s.session}
	}
	return string(stdout), nil
}

// promptVisible checks for the console prompt on the last non-empty line.
func promptVisible(pane string) bool {
	lines := strings.Split(strings.TrimRight(pane, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return consolePromptRe.MatchString(line)
	}
	return false
}
