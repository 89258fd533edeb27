// Package prompts builds the prompts for intent classification, web research
// and row generation, and holds the keyword tables they depend on.
package prompts

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// FieldKeywordRule maps field names to search hints.
type FieldKeywordRule struct {
	Match  []string `yaml:"match"`
	Search []string `yaml:"search"`
}

// Keywords holds the domain keyword tables.
type Keywords struct {
	FieldKeywords     []FieldKeywordRule `yaml:"field_keywords"`
	HedgingPhrases    []string           `yaml:"hedging_phrases"`
	ExcludedDomains   []string           `yaml:"excluded_domains"`
	KeyColumnKeywords []string           `yaml:"key_column_keywords"`
	FinancialKeywords []string           `yaml:"financial_keywords"`
	FitKeywords       []string           `yaml:"fit_keywords"`
}

var (
	defaultKeywords     *Keywords
	defaultKeywordsOnce sync.Once
)

// DefaultKeywords returns the embedded keyword tables. It panics if the
// embedded file is invalid, which a unit test guards.
func DefaultKeywords() *Keywords {
	defaultKeywordsOnce.Do(func() {
		kw, err := ParseKeywords(keywordsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded keywords.yaml: %v", err))
		}
		defaultKeywords = kw
	})
	return defaultKeywords
}

// ParseKeywords decodes a keyword table document.
func ParseKeywords(data []byte) (*Keywords, error) {
	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	if len(kw.HedgingPhrases) == 0 {
		return nil, fmt.Errorf("parse keywords: hedging_phrases must not be empty")
	}
	if len(kw.KeyColumnKeywords) == 0 {
		return nil, fmt.Errorf("parse keywords: key_column_keywords must not be empty")
	}
	return &kw, nil
}

// SearchKeywordsFor returns the search hints for a field display name.
// Hints from every matching rule are merged in rule order without duplicates.
func (k *Keywords) SearchKeywordsFor(fieldName string) []string {
	lower := strings.ToLower(fieldName)
	var out []string
	seen := map[string]bool{}
	for _, rule := range k.FieldKeywords {
		if !containsAny(lower, rule.Match) {
			continue
		}
		for _, s := range rule.Search {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// HedgingPhrase returns the first denylisted phrase found in value, or "".
func (k *Keywords) HedgingPhrase(value string) string {
	lower := strings.ToLower(value)
	for _, p := range k.HedgingPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p
		}
	}
	return ""
}

// IsExcludedURL reports whether rawURL belongs to an excluded domain or a subdomain of one.
func (k *Keywords) IsExcludedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, d := range k.ExcludedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsFinancialField reports whether a column name names a financial figure.
func (k *Keywords) IsFinancialField(name string) bool {
	return containsAny(strings.ToLower(name), k.FinancialKeywords)
}

// IsFitField reports whether a column name names a fit score. ASCII terms
// must match a whole word so "Profit" is not a fit column.
func (k *Keywords) IsFitField(name string) bool {
	lower := strings.ToLower(name)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, t := range k.FitKeywords {
		t = strings.ToLower(t)
		if t == "" {
			continue
		}
		if !isASCII(t) {
			if strings.Contains(lower, t) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == t {
				return true
			}
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
