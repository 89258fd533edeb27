// Package llm is the generative call gateway: one prompt in, raw text and
// optional source URLs out, across OpenAI-compatible, Gemini and Anthropic providers.
package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-crm/pkg/logging"
)

// Gateway executes one prompt against a language model.
// Implementations return *Error for transport, auth and timeout failures.
// Malformed text is not an error at this layer; see ParseJSON.
type Gateway interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)
	Model() string
}

// GenerateOptions selects capabilities for one call.
type GenerateOptions struct {
	System string
	// WebSearch lets the model search the web. Source URLs are reported when the provider exposes them.
	WebSearch bool
	// PageFetch makes the contents of URLs available to the model.
	PageFetch bool
	URLs      []string
	// JSONMode asks the provider for JSON-only output where supported.
	JSONMode    bool
	Temperature float64
}

// GenerateResult is the raw reply of one call.
type GenerateResult struct {
	Text       string
	SourceURLs []string
	Model      string
}

// PageSource fetches readable text for a URL. Providers without native URL
// context inline pages through it.
type PageSource interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>()\[\]]+`)

// extractURLs returns the distinct http(s) URLs mentioned in text, in order.
func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:")
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

const maxInlinedPageChars = 12000

// inlinePages appends fetched page text to the prompt. Pages that fail to load
// are listed as unavailable so the model can answer "not found".
func inlinePages(ctx context.Context, pages PageSource, prompt string, urls []string) string {
	if pages == nil || len(urls) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	for _, u := range urls {
		b.WriteString("\n\n--- PAGE: ")
		b.WriteString(u)
		b.WriteString(" ---\n")
		text, err := pages.FetchText(ctx, u)
		if err != nil || strings.TrimSpace(text) == "" {
			b.WriteString("(page unavailable)")
			continue
		}
		b.WriteString(logging.TruncateString(text, maxInlinedPageChars))
	}
	return b.String()
}
