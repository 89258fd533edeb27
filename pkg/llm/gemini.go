package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini gateway.
type GeminiConfig struct {
	Model  string
	APIKey string
}

// GeminiGateway uses the Gemini API with native Google Search grounding and
// URL context tools, so neither web search nor page fetch needs a PageSource.
type GeminiGateway struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ Gateway = (*GeminiGateway)(nil)

// NewGeminiGateway creates a Gemini gateway.
func NewGeminiGateway(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGateway{
		client: client,
		model:  cfg.Model,
		logger: logger.Named("llm-gemini"),
	}, nil
}

// Model returns the configured model name.
func (g *GeminiGateway) Model() string {
	return g.model
}

// Generate implements Gateway.
func (g *GeminiGateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	temperature := float32(opts.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}

	var tools []*genai.Tool
	if opts.WebSearch {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if opts.PageFetch {
		tools = append(tools, &genai.Tool{URLContext: &genai.URLContext{}})
		if len(opts.URLs) > 0 {
			prompt += "\n\nURLs:\n" + strings.Join(opts.URLs, "\n")
		}
	}
	if len(tools) > 0 {
		config.Tools = tools
	} else if opts.JSONMode {
		// JSON response mode cannot be combined with tools.
		config.ResponseMIMEType = "application/json"
	}

	logFields := append(contextFields(ctx),
		zap.String("model", g.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Bool("web_search", opts.WebSearch),
		zap.Bool("page_fetch", opts.PageFetch))
	g.logger.Debug("Gateway request", logFields...)

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		g.logger.Error("Gateway request failed",
			append(logFields, zap.Duration("elapsed", time.Since(start)), zap.Error(err))...)
		return nil, ClassifyError(err, "gemini", g.model)
	}

	result := &GenerateResult{Text: resp.Text(), Model: g.model}
	result.SourceURLs = groundingURLs(resp)

	g.logger.Debug("Gateway request completed",
		append(logFields,
			zap.Int("sources", len(result.SourceURLs)),
			zap.Duration("elapsed", time.Since(start)))...)

	return result, nil
}

// groundingURLs collects web source URIs from grounding metadata.
// These are typically redirect URLs; the text itself carries the official URLs.
func groundingURLs(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	var urls []string
	seen := map[string]bool{}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			urls = append(urls, chunk.Web.URI)
		}
	}
	return urls
}
