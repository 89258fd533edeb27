package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxSampleRows bounds the selected rows serialized into the intent prompt.
const MaxSampleRows = 5

// ColumnSummary describes one column for the intent prompt.
type ColumnSummary struct {
	ID   string
	Name string
	Type string
}

// IntentInput is everything the intent prompt shows the model.
type IntentInput struct {
	Message         string
	Columns         []ColumnSummary
	SampleRows      []map[string]string
	SelectedRows    int
	SelectedCellIDs []string
	// AgentMode allows enrich and generate_data.
	AgentMode bool
}

// BuildIntentSystemMessage returns the system message for intent classification.
func BuildIntentSystemMessage() string {
	return `You are the assistant of a spreadsheet-style CRM. You turn a user's request into exactly one table operation, or a plain reply when no operation fits. You answer with JSON only.`
}

// BuildIntentPrompt creates the prompt that classifies a user message.
func BuildIntentPrompt(in IntentInput) string {
	var prompt strings.Builder

	prompt.WriteString("# Table Request Classification\n\n")

	prompt.WriteString("## Columns\n\n")
	for _, col := range in.Columns {
		prompt.WriteString(fmt.Sprintf("- `%s`: %s (%s)\n", col.ID, col.Name, col.Type))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Selection\n\n")
	if in.SelectedRows == 0 && len(in.SelectedCellIDs) == 0 {
		prompt.WriteString("Nothing is selected. Use scope \"all\".\n\n")
	} else {
		prompt.WriteString(fmt.Sprintf("%d row(s) selected.\n", in.SelectedRows))
		if len(in.SelectedCellIDs) > 0 {
			prompt.WriteString(fmt.Sprintf("Selected cells: %s\n", strings.Join(in.SelectedCellIDs, ", ")))
		}
		rows := in.SampleRows
		if len(rows) > MaxSampleRows {
			rows = rows[:MaxSampleRows]
		}
		if len(rows) > 0 {
			data, _ := json.Marshal(rows)
			prompt.WriteString(fmt.Sprintf("Preview of selected rows (up to %d):\n", MaxSampleRows))
			prompt.WriteString("```json\n")
			prompt.Write(data)
			prompt.WriteString("\n```\n")
		}
		prompt.WriteString("Use scope \"selected\" when the user refers to the selection, otherwise \"all\".\n\n")
	}

	prompt.WriteString("## Tools\n\n")
	prompt.WriteString("- `filter`: show rows whose column matches. Operators: contains, equals, greater, less.\n")
	prompt.WriteString("- `sort`: order rows by a column, asc or desc.\n")
	prompt.WriteString("- `aggregate`: compute max, min, mean, sum or count of a numeric column.\n")
	if in.AgentMode {
		prompt.WriteString("- `enrich`: research the web to fill the given columns for existing rows.\n")
		prompt.WriteString("- `generate_data`: add `count` new rows of real entities matching `prompt`, then research the given columns.\n")
	} else {
		prompt.WriteString("\nRead-only mode: you MUST NOT choose enrich or generate_data. If the user asks to change, fill or add data, ")
		prompt.WriteString("use tool \"none\", explain that agent mode is required, and describe the action in `suggestedAction`.\n")
	}
	prompt.WriteString("- `none`: just reply.\n\n")

	prompt.WriteString("## Intents\n\n")
	prompt.WriteString("FILTER for filter, SORT for sort, EDIT for enrich and generate_data, CHAT for everything else (including aggregate).\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `intent`: FILTER, SORT, EDIT or CHAT\n")
	prompt.WriteString("- `tool`: filter, sort, aggregate, enrich, generate_data or none\n")
	prompt.WriteString("- `reply`: a short answer to the user in the user's language\n")
	prompt.WriteString("- `filterParams`: {columnId, operator, value, scope}\n")
	prompt.WriteString("- `sortParams`: {columnId, direction, scope}\n")
	prompt.WriteString("- `aggregateParams`: {columnId, op, scope}\n")
	if in.AgentMode {
		prompt.WriteString("- `enrichParams`: {columnIds, scope}\n")
		prompt.WriteString("- `generateParams`: {count, prompt, columnIds}\n")
	}
	prompt.WriteString("- `suggestedAction`: optional\n")
	prompt.WriteString("Only include the params object of the chosen tool. Use column ids, not names.\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{"intent": "FILTER", "tool": "filter", "reply": "Showing companies in Tokyo.", "filterParams": {"columnId": "address", "operator": "contains", "value": "東京", "scope": "all"}}`)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## User Message\n\n")
	prompt.WriteString(in.Message)
	prompt.WriteString("\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}
