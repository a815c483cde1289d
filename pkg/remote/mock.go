package remote

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockTransport implements Transport for testing. Responses are matched by
// substring against the command, in registration order.
type MockTransport struct {
	mu        sync.Mutex
	rules     []mockRule
	Calls     []MockCall
	Files     map[string][]byte // CopyIn destinations
	OutFiles  map[string][]byte // CopyOut sources
	RunErr    error
	CopyInErr error
}

type mockRule struct {
	substr string
	// respond may mutate state and return the response; called per match.
	respond func(call MockCall) ([]byte, []byte, int, error)
}

// MockCall records one Run invocation.
type MockCall struct {
	Cmd   string
	Stdin []byte
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Files:    make(map[string][]byte),
		OutFiles: make(map[string][]byte),
	}
}

// On registers a static response for commands containing substr.
func (m *MockTransport) On(substr string, stdout string, exit int) {
	m.OnFunc(substr, func(MockCall) ([]byte, []byte, int, error) {
		return []byte(stdout), nil, exit, nil
	})
}

// OnFunc registers a dynamic response for commands containing substr.
func (m *MockTransport) OnFunc(substr string, respond func(call MockCall) ([]byte, []byte, int, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substr: substr, respond: respond})
}

func (m *MockTransport) Run(ctx context.Context, cmd string, stdin []byte, timeout time.Duration) ([]byte, []byte, int, error) {
	m.mu.Lock()
	call := MockCall{Cmd: cmd, Stdin: stdin}
	m.Calls = append(m.Calls, call)
	rules := make([]mockRule, len(m.rules))
	copy(rules, m.rules)
	err := m.RunErr
	m.mu.Unlock()

	if err != nil {
		return nil, nil, -1, err
	}
	for _, r := range rules {
		if strings.Contains(cmd, r.substr) {
			return r.respond(call)
		}
	}
	return nil, nil, 0, nil
}

func (m *MockTransport) CopyIn(ctx context.Context, data []byte, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CopyInErr != nil {
		return m.CopyInErr
	}
	m.Files[remotePath] = data
	return nil
}

func (m *MockTransport) CopyOut(ctx context.Context, remotePath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.OutFiles[remotePath]; ok {
		return data, nil
	}
	return nil, &Error{Kind: KindTransport, Message: "no such file", Context: remotePath}
}

func (m *MockTransport) Close() error { return nil }

// MockEvaluator implements Evaluator for testing upper layers. Scripts are
// recorded; results come from the queue or the default.
type MockEvaluator struct {
	mu sync.Mutex

	// Scripts records every rendered script text.
	Scripts []string
	// Inputs records every input payload.
	Inputs [][]byte

	Queue      []*Result
	Default    *Result
	ExecuteErr error
	HealthErr  error

	TransferredIn  map[string][]byte
	TransferredOut map[string][]byte
}

// NewMockEvaluator creates a mock evaluator returning empty results.
func NewMockEvaluator() *MockEvaluator {
	return &MockEvaluator{
		Default:        &Result{Status: "ok"},
		TransferredIn:  make(map[string][]byte),
		TransferredOut: make(map[string][]byte),
	}
}

func (m *MockEvaluator) Execute(ctx context.Context, source ScriptSource, input []byte, timeout time.Duration) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Scripts = append(m.Scripts, source("/tmp/in.json", "/tmp/result.json"))
	m.Inputs = append(m.Inputs, input)

	if m.ExecuteErr != nil {
		return nil, m.ExecuteErr
	}
	if len(m.Queue) > 0 {
		r := m.Queue[0]
		m.Queue = m.Queue[1:]
		return r, nil
	}
	return m.Default, nil
}

func (m *MockEvaluator) TransferFileIn(ctx context.Context, data []byte, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransferredIn[remotePath] = data
	return nil
}

func (m *MockEvaluator) TransferFileOut(ctx context.Context, remotePath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.TransferredOut[remotePath]; ok {
		return data, nil
	}
	return nil, &Error{Kind: KindTransport, Message: "no such file", Context: remotePath}
}

func (m *MockEvaluator) HealthCheck(ctx context.Context) error {
	return m.HealthErr
}
