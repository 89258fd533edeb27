// Package web fetches pages and reduces them to plain text for extraction prompts.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultTimeout  = 20 * time.Second
	maxBodyBytes    = 2 << 20
	defaultMaxChars = 20000
	userAgent       = "Mozilla/5.0 (compatible; ekaya-crm/1.0)"
)

// FetcherConfig configures a PageFetcher.
type FetcherConfig struct {
	Timeout  time.Duration
	MaxChars int
}

// PageFetcher downloads pages and extracts their visible text.
type PageFetcher struct {
	client   *http.Client
	maxChars int
	logger   *zap.Logger
}

// NewPageFetcher creates a PageFetcher. A zero config uses a 20s timeout and 20000 chars.
func NewPageFetcher(cfg FetcherConfig, logger *zap.Logger) *PageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	return &PageFetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxChars: cfg.MaxChars,
		logger:   logger.Named("web"),
	}
}

// FetchText returns the readable text of an http(s) page.
func (f *PageFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid page URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "ja,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, u.Host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var text string
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/plain") {
		text = cleanText(string(body))
	} else {
		text, err = HTMLToText(string(body))
		if err != nil {
			return "", fmt.Errorf("failed to parse HTML: %w", err)
		}
	}

	text = truncateRunes(text, f.maxChars)
	f.logger.Debug("Fetched page",
		zap.String("host", u.Host),
		zap.Int("chars", len(text)))
	return text, nil
}

// HTMLToText extracts visible text from an HTML document. Table cells are
// joined with " | " so label/value pairs on company profile pages stay together.
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	extractText(root, &sb, 0)
	return cleanText(sb.String()), nil
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 80 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "template":
			return
		case "title", "h1", "h2", "h3", "h4", "p", "div", "section", "dl", "table", "ul", "ol":
			sb.WriteString("\n")
		case "br", "tr", "li", "dt":
			sb.WriteString("\n")
		case "td", "th", "dd":
			sb.WriteString(" | ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "title", "h1", "h2", "h3", "h4", "p", "table":
			sb.WriteString("\n")
		}
	}
}

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t\x{3000}]+`)
)

func cleanText(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
