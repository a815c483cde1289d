package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel markers framing the result JSON inside the noisy console stream.
const (
	JSONOutputStart = "JSON_OUTPUT_START"
	JSONOutputEnd   = "JSON_OUTPUT_END"
)

// RowResult is one row of a bulk execution result. A row with neither
// created nor updated set was found already in the target state.
type RowResult struct {
	WPID    int     `json:"wp_id"`
	JiraKey string  `json:"jira_key"`
	Created int     `json:"created"`
	Updated int     `json:"updated"`
	Error   *string `json:"error"`
}

// Result is the deserialized outcome of one remote execution.
type Result struct {
	Status string      `json:"status,omitempty"`
	Rows   []RowResult `json:"results"`
	Errors []string    `json:"errors,omitempty"`

	// Raw holds the captured console bytes for diagnostics.
	Raw []byte `json:"-"`
}

// ScriptSource renders the script text once the evaluator has chosen the
// remote input and result file paths.
type ScriptSource func(inputPath, resultPath string) string

// Evaluator is the public API of the remote-execution stack.
type Evaluator interface {
	Execute(ctx context.Context, source ScriptSource, input []byte, timeout time.Duration) (*Result, error)
	TransferFileIn(ctx context.Context, data []byte, remotePath string) error
	TransferFileOut(ctx context.Context, remotePath string) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// rubyErrorRe recognizes evaluator-side failures in console output.
var rubyErrorRe = regexp.MustCompile(`(?m)([A-Z][A-Za-z]*Error\b|ActiveRecord::|NoMethodError|SyntaxError|Traceback)`)

// ConsoleEvaluator implements Evaluator against the persistent Rails console.
type ConsoleEvaluator struct {
	container  *Container
	session    *ConsoleSession
	remoteTemp string
}

// NewConsoleEvaluator wires the evaluator from its lower layers.
func NewConsoleEvaluator(container *Container, session *ConsoleSession, remoteTemp string) *ConsoleEvaluator {
	if remoteTemp == "" {
		remoteTemp = "/tmp"
	}
	return &ConsoleEvaluator{container: container, session: session, remoteTemp: remoteTemp}
}

// Execute runs one script in the console: copy payload and script in, load
// the script, poll for the end marker, then parse the framed JSON result.
func (e *ConsoleEvaluator) Execute(ctx context.Context, source ScriptSource, input []byte, timeout time.Duration) (*Result, error) {
	nonce := newNonce()
	inputPath := path.Join(e.remoteTemp, fmt.Sprintf("j2o_in_%s.json", nonce))
	scriptPath := path.Join(e.remoteTemp, fmt.Sprintf("j2o_%s.rb", nonce))
	resultPath := path.Join(e.remoteTemp, fmt.Sprintf("j2o_result_%s.json", nonce))

	if input != nil {
		if err := e.container.CopyIn(ctx, input, inputPath); err != nil {
			return nil, err
		}
	}

	script := frameScript(source(inputPath, resultPath), nonce)
	if err := e.container.CopyIn(ctx, []byte(script), scriptPath); err != nil {
		return nil, err
	}
	defer e.cleanup(inputPath, scriptPath, resultPath)

	endMarker := "END:" + nonce
	command := fmt.Sprintf("load '%s'", scriptPath)

	pane, err := e.session.Evaluate(ctx, command, endMarker, timeout)
	if KindOf(err) == KindConsoleNotReady {
		// One stabilization attempt before surfacing.
		if stabErr := e.session.Stabilize(ctx); stabErr != nil {
			return nil, err
		}
		pane, err = e.session.Evaluate(ctx, command, endMarker, timeout)
	}
	if err != nil {
		return nil, err
	}

	return e.parseResult(ctx, pane, nonce, resultPath)
}

// parseResult extracts the framed JSON from the pane, falling back to the
// result file when the script used file mode or the pane wrapped the output.
func (e *ConsoleEvaluator) parseResult(ctx context.Context, pane []byte, nonce, resultPath string) (*Result, error) {
	segment := executionSegment(string(pane), nonce)

	payload, ok := between(segment, JSONOutputStart, JSONOutputEnd)
	if !ok || !json.Valid([]byte(payload)) {
		if data, err := e.container.CopyOut(ctx, resultPath); err == nil && len(data) > 0 {
			payload = string(data)
			if p, found := between(payload, JSONOutputStart, JSONOutputEnd); found {
				payload = p
			}
			ok = json.Valid([]byte(strings.TrimSpace(payload)))
		}
	}

	if !ok {
		if rubyErrorRe.MatchString(segment) {
			return nil, &Error{
				Kind:    KindScriptExecution,
				Message: "the Ruby evaluator raised",
				Context: excerpt(segment),
			}
		}
		return nil, &Error{
			Kind:    KindResultParse,
			Message: "result sentinels missing from console output",
			Context: excerpt(segment),
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &result); err != nil {
		return nil, &Error{Kind: KindResultParse, Message: "result JSON invalid", Err: err, Context: excerpt(payload)}
	}
	result.Raw = pane
	return &result, nil
}

// TransferFileIn copies data to a path inside the container.
func (e *ConsoleEvaluator) TransferFileIn(ctx context.Context, data []byte, remotePath string) error {
	return e.container.CopyIn(ctx, data, remotePath)
}

// TransferFileOut copies a file out of the container.
func (e *ConsoleEvaluator) TransferFileOut(ctx context.Context, remotePath string) ([]byte, error) {
	return e.container.CopyOut(ctx, remotePath)
}

// HealthCheck verifies console readiness without side effects.
func (e *ConsoleEvaluator) HealthCheck(ctx context.Context) error {
	if err := e.container.Running(ctx); err != nil {
		return err
	}
	return e.session.Ready(ctx)
}

func (e *ConsoleEvaluator) cleanup(paths ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, p := range paths {
		_ = e.container.Remove(ctx, p)
	}
}

// frameScript wraps the rendered script with the begin/end marker prints.
func frameScript(body, nonce string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("puts 'BEGIN:%s'\n", nonce))
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("puts 'END:%s'\n", nonce))
	return b.String()
}

// executionSegment returns the pane slice between this evaluation's begin and
// end markers, or the whole pane when framing is incomplete.
func executionSegment(pane, nonce string) string {
	begin := "BEGIN:" + nonce
	end := "END:" + nonce
	start := strings.LastIndex(pane, begin)
	if start < 0 {
		return pane
	}
	rest := pane[start+len(begin):]
	if stop := strings.Index(rest, end); stop >= 0 {
		return rest[:stop]
	}
	return rest
}

func between(s, start, end string) (string, bool) {
	i := strings.Index(s, start)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:j]), true
}

// newNonce returns a fresh 128-bit nonce in compact hex form.
func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 400 {
		return s[:400] + "..."
	}
	return s
}
