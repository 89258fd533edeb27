package prompts

import (
	"fmt"
	"strings"
)

// DiscoveryInput describes one source discovery request.
type DiscoveryInput struct {
	Entity         string
	FieldName      string
	SearchKeywords []string
	Excluded       []string
	MaxURLs        int
}

// BuildDiscoveryPrompt asks for official first-party URLs likely to state the field.
func BuildDiscoveryPrompt(in DiscoveryInput) string {
	var prompt strings.Builder

	prompt.WriteString("# Source Discovery\n\n")
	prompt.WriteString(fmt.Sprintf("Search the web for pages published by **%s** itself that state its **%s**.\n\n", in.Entity, in.FieldName))

	if len(in.SearchKeywords) > 0 {
		prompt.WriteString(fmt.Sprintf("Suggested query: \"%s\" %s\n\n", in.Entity, strings.Join(in.SearchKeywords, " OR ")))
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Return ONLY official first-party URLs (the company's own domain).\n")
	prompt.WriteString("- Exclude encyclopedias, news sites, press release aggregators, job boards, social media and company databases.\n")
	if len(in.Excluded) > 0 {
		prompt.WriteString(fmt.Sprintf("- Never return these domains: %s\n", strings.Join(in.Excluded, ", ")))
	}
	prompt.WriteString(fmt.Sprintf("- Return at most %d URLs, most relevant first.\n", in.MaxURLs))
	prompt.WriteString("- If you cannot find an official page, return an empty array.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("A JSON array of URL strings, for example:\n")
	prompt.WriteString("```json\n[\"https://www.example.co.jp/company/\", \"https://www.example.co.jp/law/\"]\n```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// ExtractionInput describes one field extraction from one page.
type ExtractionInput struct {
	Entity      string
	FieldName   string
	Description string
	Numeric     bool
	URL         string
	// OrgContext, when set, adds a fit classification of the entity.
	OrgContext string
}

// BuildExtractionSystemMessage returns the system message for extraction calls.
func BuildExtractionSystemMessage() string {
	return `You extract facts about companies from web pages. You only report information that is explicitly stated on the page. Saying "not found" is always acceptable; guessing is not.`
}

// BuildExtractionPrompt asks for one field from one page.
func BuildExtractionPrompt(in ExtractionInput) string {
	var prompt strings.Builder

	prompt.WriteString("# Field Extraction\n\n")
	prompt.WriteString(fmt.Sprintf("Company: **%s**\n", in.Entity))
	prompt.WriteString(fmt.Sprintf("Field: **%s**\n", in.FieldName))
	if in.Description != "" {
		prompt.WriteString(fmt.Sprintf("Field description: %s\n", in.Description))
	}
	prompt.WriteString(fmt.Sprintf("Page: %s\n\n", in.URL))

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Use only what this page states. Do not use prior knowledge.\n")
	prompt.WriteString("- If the page does not state the field, set `value` to \"\" and `confidence` to \"low\".\n")
	prompt.WriteString("- `confidence` is \"high\" when the value is stated verbatim, \"medium\" when it needs light interpretation.\n")
	if in.Numeric {
		prompt.WriteString("- The field is numeric: give the number with its unit as written (e.g. \"1億2000万円\", \"350名\").\n")
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("```json\n{\"value\": \"...\", \"confidence\": \"high|medium|low\", \"reasoning\": \"one sentence\"}\n```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildFinancialPrompt asks a web-search call for a financial figure with its source.
func BuildFinancialPrompt(entity, fieldName string) string {
	var prompt strings.Builder

	prompt.WriteString("# Financial Figure Lookup\n\n")
	prompt.WriteString(fmt.Sprintf("Find the most recent **%s** of **%s**.\n\n", fieldName, entity))

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Prefer the company's own IR pages, securities filings or official company profile.\n")
	prompt.WriteString("- Report the figure with its unit and fiscal year if stated.\n")
	prompt.WriteString("- If no source states it, set `value` to \"\" and `confidence` to \"low\". Do not estimate.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("```json\n{\"value\": \"...\", \"confidence\": \"high|medium|low\", \"source_url\": \"https://...\", \"reasoning\": \"one sentence\"}\n```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildFitPrompt asks for a high/medium/low fit classification of an entity
// against the organization's description of its target customers.
func BuildFitPrompt(entity, orgContext string, known map[string]string) string {
	var prompt strings.Builder

	prompt.WriteString("# Customer Fit Classification\n\n")
	prompt.WriteString("## Our Organization\n\n")
	prompt.WriteString(orgContext)
	prompt.WriteString("\n\n")

	prompt.WriteString(fmt.Sprintf("## Candidate: %s\n\n", entity))
	if len(known) > 0 {
		for _, k := range sortedKeys(known) {
			prompt.WriteString(fmt.Sprintf("- %s: %s\n", k, known[k]))
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("You may search the web for what the candidate does.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Classify how well the candidate fits our target customer profile.\n")
	prompt.WriteString("```json\n{\"fit\": \"high|medium|low\", \"reasoning\": \"one sentence\"}\n```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}
