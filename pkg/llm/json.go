package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-crm/pkg/logging"
)

// ParseErrorKind distinguishes "the gateway returned nothing" from
// "the gateway returned garbage".
type ParseErrorKind string

const (
	ParseErrorEmpty     ParseErrorKind = "empty"
	ParseErrorMalformed ParseErrorKind = "malformed"
)

// ParseError is returned when model output cannot be decoded as the expected JSON.
type ParseError struct {
	Kind ParseErrorKind
	// Snippet is the start of the raw text, for logging.
	Snippet string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Kind == ParseErrorEmpty {
		return "parse model output: empty response"
	}
	if e.Cause != nil {
		return fmt.Sprintf("parse model output: malformed JSON: %v", e.Cause)
	}
	return "parse model output: malformed JSON"
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsParseError reports whether err is a *ParseError of the given kind.
// An empty kind matches any ParseError.
func IsParseError(err error, kind ParseErrorKind) bool {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return false
	}
	return kind == "" || pe.Kind == kind
}

// thinkTagPattern matches <think>...</think> tags that some models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// codeFencePattern captures the body of the first ``` or ```json fenced block.
var codeFencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ParseJSON decodes model output into T in two stages: a strict parse of the
// trimmed text, then best-effort extraction (code fence body, then the first
// balanced object or array). Failure is always a *ParseError.
func ParseJSON[T any](text string) (T, error) {
	var result T

	trimmed := strings.TrimSpace(thinkTagPattern.ReplaceAllString(text, ""))
	if trimmed == "" {
		return result, &ParseError{Kind: ParseErrorEmpty}
	}

	strictErr := json.Unmarshal([]byte(trimmed), &result)
	if strictErr == nil {
		return result, nil
	}

	jsonStr, err := ExtractJSON(trimmed)
	if err != nil {
		return result, &ParseError{Kind: ParseErrorMalformed, Snippet: snippet(trimmed), Cause: strictErr}
	}

	var extracted T
	if err := json.Unmarshal([]byte(jsonStr), &extracted); err != nil {
		return result, &ParseError{Kind: ParseErrorMalformed, Snippet: snippet(trimmed), Cause: err}
	}
	return extracted, nil
}

func snippet(s string) string {
	return logging.TruncateString(s, 120)
}

// ExtractJSON extracts JSON content from a reply that may contain <think> tags,
// markdown code fences, or surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	if m := codeFencePattern.FindStringSubmatch(cleaned); len(m) == 2 {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return body, nil
		}
		cleaned = body
	}

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced structure starting with openChar,
// ignoring brackets inside strings.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
