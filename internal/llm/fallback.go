package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Candidate struct {
	Name     string
	Provider Provider
}

type FallbackOptions struct {
	Attempts       int
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// FallbackProvider tries each candidate in order, retrying transient failures and moving to the
// next candidate on gateway errors.
type FallbackProvider struct {
	candidates     []Candidate
	attempts       int
	requestTimeout time.Duration
	logger         *zap.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewFallbackProvider(candidates []Candidate, opts FallbackOptions) *FallbackProvider {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackProvider{
		candidates:     candidates,
		attempts:       attempts,
		requestTimeout: opts.RequestTimeout,
		logger:         logger,
		sleep:          sleepContext,
	}
}

func (p *FallbackProvider) Candidates() []Candidate {
	return append([]Candidate{}, p.candidates...)
}

func (p *FallbackProvider) Generate(ctx context.Context, req Request) (string, error) {
	if len(p.candidates) == 0 {
		return "", ErrNoProviders
	}
	var lastErr error
	for _, candidate := range p.candidates {
		for attempt := 1; attempt <= p.attempts; attempt++ {
			if delay := retryDelay(attempt); delay > 0 {
				if err := p.sleep(ctx, delay); err != nil {
					return "", err
				}
			}

			generateCtx := ctx
			cancel := func() {}
			if p.requestTimeout > 0 {
				generateCtx, cancel = context.WithTimeout(ctx, p.requestTimeout)
			}
			response, err := candidate.Provider.Generate(generateCtx, req)
			cancel()
			if err == nil && strings.TrimSpace(response) == "" {
				err = ErrEmptyResponse
			}
			if err == nil {
				return response, nil
			}

			p.logger.Warn("llm request failed",
				zap.String("provider", candidate.Name),
				zap.String("model", req.Model),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !IsRetryable(err) {
				return "", err
			}
			if shouldFailover(err) {
				break
			}
			if isTimeout(err) && attempt >= 2 {
				break
			}
		}
	}
	return "", lastErr
}

func retryDelay(attempt int) time.Duration {
	switch attempt {
	case 2:
		return 250 * time.Millisecond
	case 3:
		return 750 * time.Millisecond
	default:
		return 0
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
