package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/retry"
)

// ResilientConfig bounds each call through a ResilientGateway.
type ResilientConfig struct {
	// Timeout per attempt. Zero disables the per-call deadline.
	Timeout time.Duration
	// MaxRetries after the first attempt, transient errors only.
	MaxRetries int
	Circuit    CircuitBreakerConfig
}

// ResilientGateway wraps a Gateway with a per-call timeout, retries of
// transient failures and a circuit breaker shared by all callers.
type ResilientGateway struct {
	inner   Gateway
	cfg     ResilientConfig
	breaker *CircuitBreaker
	logger  *zap.Logger
}

var _ Gateway = (*ResilientGateway)(nil)

// NewResilientGateway wraps inner.
func NewResilientGateway(inner Gateway, cfg ResilientConfig, logger *zap.Logger) *ResilientGateway {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &ResilientGateway{
		inner:   inner,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.Circuit),
		logger:  logger.Named("llm-resilient"),
	}
}

// Model returns the wrapped gateway's model.
func (g *ResilientGateway) Model() string {
	return g.inner.Model()
}

// Breaker exposes the circuit breaker for health reporting.
func (g *ResilientGateway) Breaker() *CircuitBreaker {
	return g.breaker
}

// Generate implements Gateway.
func (g *ResilientGateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	return retry.DoIfRetryableWithResult(ctx, retry.GatewayConfig(g.cfg.MaxRetries), func() (*GenerateResult, error) {
		return g.attempt(ctx, prompt, opts)
	})
}

func (g *ResilientGateway) attempt(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	if ok, err := g.breaker.Allow(); !ok {
		g.logger.Warn("Gateway call rejected by circuit breaker",
			append(contextFields(ctx), zap.String("state", g.breaker.State().String()))...)
		return nil, err
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	result, err := g.inner.Generate(callCtx, prompt, opts)
	if err != nil {
		gwErr := ClassifyError(err, "", g.inner.Model())
		// A deadline on our own timer is a timeout, but a cancelled parent is not retried.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			gwErr = NewError(ErrorTypeTimeout, "request timeout", true, err)
			gwErr.Model = g.inner.Model()
		}
		if gwErr.Retryable {
			g.breaker.RecordFailure()
		} else {
			// The provider answered; it is reachable.
			g.breaker.RecordSuccess()
		}
		return nil, gwErr
	}

	g.breaker.RecordSuccess()
	return result, nil
}
