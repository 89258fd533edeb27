package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestResilientGateway_FailFastByDefault(t *testing.T) {
	mock := NewMockGateway(func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
		return nil, errors.New("status code: 503")
	})
	g := NewResilientGateway(mock, ResilientConfig{}, zap.NewNop())

	_, err := g.Generate(context.Background(), "p", GenerateOptions{})

	if GetErrorType(err) != ErrorTypeEndpoint {
		t.Errorf("expected classified endpoint error, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected exactly 1 call with zero retries, got %d", mock.CallCount())
	}
}

func TestResilientGateway_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	mock := NewMockGateway(func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("status code: 429")
		}
		return TextReply("ok"), nil
	})
	g := NewResilientGateway(mock, ResilientConfig{MaxRetries: 2}, zap.NewNop())

	res, err := g.Generate(context.Background(), "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "ok" || attempts != 2 {
		t.Errorf("expected ok after 2 attempts, got %q after %d", res.Text, attempts)
	}
}

func TestResilientGateway_PerCallTimeout(t *testing.T) {
	mock := NewMockGateway(func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := NewResilientGateway(mock, ResilientConfig{Timeout: 10 * time.Millisecond}, zap.NewNop())

	_, err := g.Generate(context.Background(), "p", GenerateOptions{})

	if GetErrorType(err) != ErrorTypeTimeout {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestResilientGateway_OpensCircuit(t *testing.T) {
	mock := NewMockGateway(func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
		return nil, errors.New("connection refused")
	})
	g := NewResilientGateway(mock, ResilientConfig{
		Circuit: CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute},
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, _ = g.Generate(context.Background(), "p", GenerateOptions{})
	}
	_, err := g.Generate(context.Background(), "p", GenerateOptions{})

	if GetErrorType(err) != ErrorTypeCircuit {
		t.Errorf("expected circuit error, got %v", err)
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected rejected call not to reach provider, got %d calls", mock.CallCount())
	}
	if g.Breaker().State() != CircuitOpen {
		t.Errorf("expected open circuit, got %v", g.Breaker().State())
	}
}

func TestResilientGateway_AuthErrorDoesNotTrip(t *testing.T) {
	mock := NewMockGateway(func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
		return nil, errors.New("status code: 401")
	})
	g := NewResilientGateway(mock, ResilientConfig{
		Circuit: CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Minute},
	}, zap.NewNop())

	_, _ = g.Generate(context.Background(), "p", GenerateOptions{})
	_, err := g.Generate(context.Background(), "p", GenerateOptions{})

	if GetErrorType(err) != ErrorTypeAuth {
		t.Errorf("expected auth error, got %v", err)
	}
	if g.Breaker().State() != CircuitClosed {
		t.Errorf("auth errors must not open the circuit")
	}
}
