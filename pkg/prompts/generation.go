package prompts

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// NamesInput describes one entity name generation request.
type NamesInput struct {
	Count    int
	Request  string
	Noun     string
	Existing []string
}

// BuildNamesPrompt asks for Count real entity names matching the request.
func BuildNamesPrompt(in NamesInput) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("# %s List\n\n", in.Noun))
	prompt.WriteString(fmt.Sprintf("List exactly %d real, currently operating %s that match:\n\n", in.Count, strings.ToLower(inflection.Plural(in.Noun))))
	prompt.WriteString(in.Request)
	prompt.WriteString("\n\n")

	if len(in.Existing) > 0 {
		prompt.WriteString("Do not repeat any of these:\n")
		for _, name := range in.Existing {
			prompt.WriteString("- ")
			prompt.WriteString(name)
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("A JSON array of official names, for example:\n")
	prompt.WriteString("```json\n[\"株式会社サンプル\", \"Example Inc.\"]\n```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// EntityNoun derives the singular noun for the entities a table holds,
// e.g. "Companies" -> "Company", "SaaS Leads" -> "Lead". Tables without an
// English name fall back to "Company".
func EntityNoun(tableName string) string {
	words := strings.FieldsFunc(tableName, func(r rune) bool {
		return !unicode.IsLetter(r) || r > unicode.MaxASCII
	})
	if len(words) == 0 {
		return "Company"
	}
	last := words[len(words)-1]
	if len(last) < 3 {
		return "Company"
	}
	singular := inflection.Singular(strings.ToLower(last))
	return strings.ToUpper(singular[:1]) + singular[1:]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
