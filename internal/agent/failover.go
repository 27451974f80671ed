package agent

import (
	"context"
	"time"

	"github.com/soyeahso/roombot/internal/llm"
	"github.com/soyeahso/roombot/internal/logging"
)

// LLMObserver receives one callback per provider attempt.
type LLMObserver interface {
	ObserveLLM(provider, status string, elapsed time.Duration, inputTokens, outputTokens int)
}

// FailoverClient wraps an LLM registry to try fallback providers on failure.
type FailoverClient struct {
	registry *llm.Registry
	primary  string
	observer LLMObserver
	log      *logging.Logger
}

// NewFailoverClient creates a client that tries the provider for primary
// first, then the registry's failover chain on retryable errors.
func NewFailoverClient(registry *llm.Registry, primary string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry: registry,
		primary:  primary,
		log:      log.Sub("failover"),
	}
}

// Observe reports every provider attempt to o.
func (f *FailoverClient) Observe(o LLMObserver) *FailoverClient {
	f.observer = o
	return f
}

// Name returns the primary model reference.
func (f *FailoverClient) Name() string { return f.primary }

// Complete tries each candidate in turn. A non-retryable error or a done
// context stops the walk.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	candidates, err := f.registry.Candidates(f.primary)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, client := range candidates {
		// A provider name is not a model; let the provider use its own.
		req.Model = ""
		if i == 0 && f.primary != client.Name() {
			req.Model = f.primary
		}

		started := time.Now()
		resp, err := client.Complete(ctx, req)
		elapsed := time.Since(started)

		if err == nil {
			f.observe(client.Name(), "ok", elapsed, resp.Usage)
			return resp, nil
		}
		f.observe(client.Name(), "error", elapsed, llm.Usage{})
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if llm.IsRetryable(err) && i < len(candidates)-1 {
			f.log.Warn().
				Str("provider", client.Name()).
				Err(err).
				Msg("retryable error, trying next provider")
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (f *FailoverClient) observe(provider, status string, elapsed time.Duration, u llm.Usage) {
	if f.observer != nil {
		f.observer.ObserveLLM(provider, status, elapsed, u.InputTokens, u.OutputTokens)
	}
}
