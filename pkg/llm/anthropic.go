package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicMaxTokens = 2048

// AnthropicConfig configures the Anthropic gateway.
type AnthropicConfig struct {
	Model  string
	APIKey string
}

// AnthropicGateway calls the Anthropic Messages API. It has no web search
// tool here: WebSearch calls rely on the model's own knowledge and the URLs
// it mentions, and PageFetch inlines pages from PageSource.
type AnthropicGateway struct {
	client *anthropic.Client
	model  string
	pages  PageSource
	logger *zap.Logger
}

var _ Gateway = (*AnthropicGateway)(nil)

// NewAnthropicGateway creates an Anthropic gateway.
func NewAnthropicGateway(cfg AnthropicConfig, pages PageSource, logger *zap.Logger) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &AnthropicGateway{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		pages:  pages,
		logger: logger.Named("llm-anthropic"),
	}, nil
}

// Model returns the configured model name.
func (g *AnthropicGateway) Model() string {
	return g.model
}

// Generate implements Gateway.
func (g *AnthropicGateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	if opts.PageFetch {
		prompt = inlinePages(ctx, g.pages, prompt, opts.URLs)
	}
	if opts.JSONMode {
		prompt += "\n\nRespond with JSON only."
	}

	temperature := float32(opts.Temperature)
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}},
			},
		},
		Temperature: &temperature,
	}
	if opts.System != "" {
		req.System = opts.System
	}

	logFields := append(contextFields(ctx),
		zap.String("model", g.model),
		zap.Int("prompt_len", len(prompt)))
	g.logger.Debug("Gateway request", logFields...)

	start := time.Now()
	resp, err := g.client.CreateMessages(ctx, req)
	if err != nil {
		g.logger.Error("Gateway request failed",
			append(logFields, zap.Duration("elapsed", time.Since(start)), zap.Error(err))...)
		return nil, ClassifyError(err, "anthropic", g.model)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}

	g.logger.Debug("Gateway request completed",
		append(logFields, zap.Duration("elapsed", time.Since(start)))...)

	result := &GenerateResult{Text: text.String(), Model: g.model}
	if opts.WebSearch {
		result.SourceURLs = extractURLs(result.Text)
	}
	return result, nil
}
