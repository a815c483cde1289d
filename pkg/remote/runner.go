package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

// OneShotRunner implements Evaluator by spawning a fresh `rails runner`
// process per script. Boot cost makes it 50-100x slower than the console
// session; it exists only as a single-script rescue path and must be enabled
// explicitly in configuration.
type OneShotRunner struct {
	container  *Container
	remoteTemp string
	appDir     string
}

// NewOneShotRunner creates the fallback evaluator. appDir is the Rails root
// inside the container.
func NewOneShotRunner(container *Container, remoteTemp, appDir string) *OneShotRunner {
	if remoteTemp == "" {
		remoteTemp = "/tmp"
	}
	if appDir == "" {
		appDir = "/app"
	}
	return &OneShotRunner{container: container, remoteTemp: remoteTemp, appDir: appDir}
}

// Execute implements Evaluator.
func (r *OneShotRunner) Execute(ctx context.Context, source ScriptSource, input []byte, timeout time.Duration) (*Result, error) {
	nonce := newNonce()
	inputPath := path.Join(r.remoteTemp, fmt.Sprintf("j2o_in_%s.json", nonce))
	scriptPath := path.Join(r.remoteTemp, fmt.Sprintf("j2o_%s.rb", nonce))
	resultPath := path.Join(r.remoteTemp, fmt.Sprintf("j2o_result_%s.json", nonce))

	if input != nil {
		if err := r.container.CopyIn(ctx, input, inputPath); err != nil {
			return nil, err
		}
	}
	script := frameScript(source(inputPath, resultPath), nonce)
	if err := r.container.CopyIn(ctx, []byte(script), scriptPath); err != nil {
		return nil, err
	}
	defer r.cleanup(inputPath, scriptPath, resultPath)

	cmd := fmt.Sprintf("cd %s && bundle exec rails runner %s", shellQuote(r.appDir), shellQuote(scriptPath))
	stdout, stderr, exit, err := r.container.Run(ctx, cmd, nil, timeout)
	if err != nil {
		return nil, err
	}
	if exit != 0 {
		return nil, &Error{
			Kind:    KindScriptExecution,
			Message: fmt.Sprintf("rails runner exited %d", exit),
			Context: excerpt(string(stderr)),
		}
	}

	out := string(stdout)
	payload, ok := between(out, JSONOutputStart, JSONOutputEnd)
	if !ok {
		if data, ferr := r.container.CopyOut(ctx, resultPath); ferr == nil && len(data) > 0 {
			payload, ok = strings.TrimSpace(string(data)), true
		}
	}
	if !ok {
		if rubyErrorRe.MatchString(out) {
			return nil, &Error{Kind: KindScriptExecution, Message: "the Ruby evaluator raised", Context: excerpt(out)}
		}
		return nil, &Error{Kind: KindResultParse, Message: "result sentinels missing from runner output", Context: excerpt(out)}
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, &Error{Kind: KindResultParse, Message: "result JSON invalid", Err: err, Context: excerpt(payload)}
	}
	result.Raw = stdout
	return &result, nil
}

// TransferFileIn implements Evaluator.
func (r *OneShotRunner) TransferFileIn(ctx context.Context, data []byte, remotePath string) error {
	return r.container.CopyIn(ctx, data, remotePath)
}

// TransferFileOut implements Evaluator.
func (r *OneShotRunner) TransferFileOut(ctx context.Context, remotePath string) ([]byte, error) {
	return r.container.CopyOut(ctx, remotePath)
}

// HealthCheck implements Evaluator. Only the container needs to be up; no
// console session is involved.
func (r *OneShotRunner) HealthCheck(ctx context.Context) error {
	return r.container.Running(ctx)
}

func (r *OneShotRunner) cleanup(paths ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, p := range paths {
		_ = r.container.Remove(ctx, p)
	}
}
