package remote

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// FallbackEvaluator executes through the persistent console and falls back
// to the one-shot runner when the console path is unavailable. Script-level
// failures are not retried on the fallback; a broken script breaks both ways.
type FallbackEvaluator struct {
	Primary   Evaluator
	Secondary Evaluator
	Log       logr.Logger
}

func (f *FallbackEvaluator) Execute(ctx context.Context, source ScriptSource, input []byte, timeout time.Duration) (*Result, error) {
	result, err := f.Primary.Execute(ctx, source, input, timeout)
	if err == nil || !fallbackWorthy(err) {
		return result, err
	}
	f.Log.Info("console evaluation unavailable, using one-shot runner", "kind", string(KindOf(err)))
	return f.Secondary.Execute(ctx, source, input, timeout)
}

func fallbackWorthy(err error) bool {
	switch KindOf(err) {
	case KindConsoleNotReady, KindTimeout, KindResultParse:
		return true
	}
	return false
}

func (f *FallbackEvaluator) TransferFileIn(ctx context.Context, data []byte, remotePath string) error {
	return f.Primary.TransferFileIn(ctx, data, remotePath)
}

func (f *FallbackEvaluator) TransferFileOut(ctx context.Context, remotePath string) ([]byte, error) {
	return f.Primary.TransferFileOut(ctx, remotePath)
}

func (f *FallbackEvaluator) HealthCheck(ctx context.Context) error {
	if err := f.Primary.HealthCheck(ctx); err == nil {
		return nil
	}
	return f.Secondary.HealthCheck(ctx)
}
