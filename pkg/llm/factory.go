package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/config"
)

// NewGatewayFromConfig builds the configured provider wrapped in a
// ResilientGateway. Missing credentials are a *apperrors.ConfigurationError
// so startup fails before any call is attempted.
func NewGatewayFromConfig(ctx context.Context, cfg config.AIConfig, pages PageSource, logger *zap.Logger) (*ResilientGateway, error) {
	var (
		inner Gateway
		err   error
	)

	switch cfg.Provider {
	case "openai":
		inner, err = NewOpenAIGateway(OpenAIConfig{
			Endpoint:    cfg.BaseURL,
			Model:       cfg.Model,
			SearchModel: cfg.SearchModel,
			APIKey:      cfg.APIKey,
		}, pages, logger)
	case "gemini":
		if cfg.APIKey == "" {
			return nil, apperrors.NewConfigurationError("AI_API_KEY", "API key is required for provider gemini")
		}
		inner, err = NewGeminiGateway(ctx, GeminiConfig{Model: cfg.Model, APIKey: cfg.APIKey}, logger)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, apperrors.NewConfigurationError("AI_API_KEY", "API key is required for provider anthropic")
		}
		inner, err = NewAnthropicGateway(AnthropicConfig{Model: cfg.Model, APIKey: cfg.APIKey}, pages, logger)
	default:
		return nil, apperrors.NewConfigurationError("ai.provider", "unsupported provider "+cfg.Provider)
	}
	if err != nil {
		return nil, apperrors.NewConfigurationError("ai", err.Error())
	}

	logger.Info("Generative gateway configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", inner.Model()),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("timeout", cfg.Timeout))

	return NewResilientGateway(inner, ResilientConfig{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Circuit: CircuitBreakerConfig{
			Threshold:  cfg.CircuitThreshold,
			ResetAfter: cfg.CircuitReset,
		},
	}, logger), nil
}
