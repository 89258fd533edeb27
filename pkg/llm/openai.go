package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig configures an OpenAI-compatible gateway.
type OpenAIConfig struct {
	Endpoint string // Base URL, e.g. "https://api.openai.com/v1"
	Model    string
	// SearchModel is used instead of Model when WebSearch is requested.
	SearchModel string
	APIKey      string // Optional for local endpoints
}

// OpenAIGateway talks to OpenAI-compatible chat completion endpoints.
// Web search uses a search-capable model; page fetch inlines pages from PageSource.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	searchModel string
	pages       PageSource
	logger      *zap.Logger
}

var _ Gateway = (*OpenAIGateway)(nil)

// NewOpenAIGateway creates an OpenAI-compatible gateway.
func NewOpenAIGateway(cfg OpenAIConfig, pages PageSource, logger *zap.Logger) (*OpenAIGateway, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	searchModel := cfg.SearchModel
	if searchModel == "" {
		searchModel = cfg.Model
	}

	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		searchModel: searchModel,
		pages:       pages,
		logger:      logger.Named("llm-openai"),
	}, nil
}

// Model returns the default model name.
func (g *OpenAIGateway) Model() string {
	return g.model
}

// Generate implements Gateway.
func (g *OpenAIGateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	model := g.model
	if opts.WebSearch {
		model = g.searchModel
	}
	if opts.PageFetch {
		prompt = inlinePages(ctx, g.pages, prompt, opts.URLs)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	// Search models reject sampling and response format parameters.
	if !opts.WebSearch {
		req.Temperature = float32(opts.Temperature)
		if opts.JSONMode {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		}
	}

	logFields := append(contextFields(ctx),
		zap.String("model", model),
		zap.Int("prompt_len", len(prompt)),
		zap.Bool("web_search", opts.WebSearch),
		zap.Bool("page_fetch", opts.PageFetch))
	g.logger.Debug("Gateway request", logFields...)

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		g.logger.Error("Gateway request failed",
			append(logFields, zap.Duration("elapsed", time.Since(start)), zap.Error(err))...)
		return nil, ClassifyError(err, "openai", model)
	}

	if len(resp.Choices) == 0 {
		return &GenerateResult{Model: model}, nil
	}

	content := resp.Choices[0].Message.Content

	g.logger.Debug("Gateway request completed",
		append(logFields,
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Duration("elapsed", time.Since(start)))...)

	result := &GenerateResult{Text: content, Model: model}
	if opts.WebSearch {
		result.SourceURLs = extractURLs(content)
	}
	return result, nil
}
