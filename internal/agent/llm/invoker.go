package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"todoagent/pkg/circuitbreaker"
	"todoagent/pkg/metrics"
	"todoagent/pkg/util"
)

var (
	ErrTimeout     = errors.New("model call timed out")
	ErrUnavailable = errors.New("model provider unavailable")
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

type InvokerConfig struct {
	// Timeout bounds each attempt.
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	Breaker       *circuitbreaker.CircuitBreaker
}

// Invoker decorates a Client with a per-attempt timeout, retries for
// retryable errors and a circuit breaker. Model calls have no side effects
// before they succeed, so retrying them is safe.
type Invoker struct {
	next   Client
	cfg    InvokerConfig
	logger *zap.Logger
}

func NewInvoker(next Client, cfg InvokerConfig, logger *zap.Logger) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{next: next, cfg: cfg, logger: logger}
}

func (i *Invoker) Provider() string { return i.next.Provider() }

func (i *Invoker) Generate(ctx context.Context, req *Request) (*Response, error) {
	backoff := retry.WithMaxRetries(uint64(i.cfg.RetryAttempts),
		retry.WithCappedDuration(maxRetryBackoff, retry.NewExponential(i.cfg.RetryBackoff)))

	var resp *Response
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var callErr error
		resp, callErr = i.attempt(ctx, req)
		if callErr == nil {
			return nil
		}
		if errors.Is(callErr, circuitbreaker.ErrCircuitBreakerOpen) {
			return callErr
		}
		if ok, reason := util.IsRetryableError(callErr); ok {
			i.logger.Warn("Model call failed, retrying",
				zap.String("provider", i.Provider()),
				zap.Int("attempt", attempt),
				zap.String("reason", reason),
				zap.Error(callErr),
			)
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, i.classify(ctx, err)
	}
	return resp, nil
}

func (i *Invoker) attempt(ctx context.Context, req *Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var resp *Response
	call := func(ctx context.Context) error {
		var err error
		resp, err = i.next.Generate(ctx, req)
		return err
	}

	var err error
	if i.cfg.Breaker != nil {
		err = i.cfg.Breaker.Execute(callCtx, call)
	} else {
		err = call(callCtx)
	}

	status := "ok"
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		status = "circuit_open"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		if err != nil {
			status = "timeout"
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
	case err != nil:
		status = "error"
	}
	metrics.RecordLLMCallLatency(i.Provider(), status, time.Since(start))
	return resp, err
}

// classify maps the final error onto ErrTimeout / ErrUnavailable.
func (i *Invoker) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
