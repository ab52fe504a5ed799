// Package llmclient defines the LLM provider contract consulted by the
// worker and orchestrator loops. Concrete provider SDKs (OpenAI, Anthropic,
// ...) are deliberately out of scope (spec §1) — only the interface and its
// generic retry/timeout wrapper live here.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// Client completes a single prompt against a model profile. Implementations
// are expected to apply the profile's temperature/max_tokens/top_p/json_mode
// parameters themselves; Complete is given the fully-rendered prompt text.
type Client interface {
	Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error)
}

// TransientError marks a failure the retry wrapper should retry (timeouts,
// 5xx-equivalent provider errors).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error { return &TransientError{Err: err} }

// IsTransient reports whether err (or something it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryingClient wraps a Client with the model profile's retry policy:
// max_attempts, initial_delay, multiplier — exponential backoff, retried
// only for TransientError; any other error (auth, bad request) is returned
// immediately as an LLMHardError-equivalent (§7).
type RetryingClient struct {
	Inner Client
}

// Complete calls Inner.Complete, retrying transient failures per the model
// profile's retry policy, and bounding each attempt separately by the
// profile's timeout.
func (r *RetryingClient) Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error) {
	attempts := profile.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(profile.Retry.InitialDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	multiplier := profile.Retry.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if profile.TimeoutSecs > 0 {
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(profile.TimeoutSecs)*time.Second)
		}
		out, err := r.Inner.Complete(callCtx, profile, prompt)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts-1 {
			return "", err
		}
		wait := time.Duration(float64(delay) * math.Pow(multiplier, float64(attempt)))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("llm call exhausted retries: %w", lastErr)
}
