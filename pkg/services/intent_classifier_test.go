package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/llm"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

func classifierWithReply(text string, err error) (*llm.MockGateway, IntentClassifier) {
	gw := llm.NewMockGateway(func(ctx context.Context, prompt string, opts llm.GenerateOptions) (*llm.GenerateResult, error) {
		if err != nil {
			return nil, err
		}
		return llm.TextReply(text), nil
	})
	return gw, NewIntentClassifier(gw, zap.NewNop())
}

func chatRequest(msg string, mode models.ChatMode) ChatRequest {
	return ChatRequest{
		Message: msg,
		Table: memTable(companyColumns(),
			map[string]any{"company_name": "Acme", "revenue": float64(100)},
			map[string]any{"company_name": "Globex"},
		),
		Mode: mode,
	}
}

func TestIntentClassifier_Filter(t *testing.T) {
	_, c := classifierWithReply("```json\n"+`{"intent":"filter","tool":"filter","reply":"Showing Acme.","filterParams":{"columnId":"Company","operator":"CONTAINS","value":"Acme","scope":"all"}}`+"\n```", nil)

	res := c.Analyze(context.Background(), chatRequest("show acme", models.ChatModeChat))

	assert.Equal(t, models.IntentFilter, res.Intent)
	assert.Equal(t, models.ToolFilter, res.Tool)
	require.IsType(t, models.FilterParams{}, res.Call)
	f := res.Call.(models.FilterParams)
	assert.Equal(t, "company_name", f.ColumnID, "column name resolves to id")
	assert.Equal(t, models.FilterContains, f.Operator)
	assert.Equal(t, models.ScopeAll, f.Scope)
}

func TestIntentClassifier_AggregateWithLooseTypes(t *testing.T) {
	_, c := classifierWithReply(`{"intent":"CHAT","tool":"aggregate","reply":"Average revenue:","aggregateParams":{"columnId":"revenue","op":"average","scope":"selected"}}`, nil)

	res := c.Analyze(context.Background(), chatRequest("average revenue", models.ChatModeChat))

	require.Equal(t, models.ToolAggregate, res.Tool)
	a := res.Call.(models.AggregateParams)
	assert.Equal(t, models.AggregateMean, a.Op)
	assert.Equal(t, models.ScopeSelected, a.Scope)
}

func TestIntentClassifier_GenerateInAgentMode(t *testing.T) {
	_, c := classifierWithReply(`{"intent":"EDIT","tool":"generate_data","reply":"Adding 3 companies.","generateParams":{"count":"3","prompt":"SaaS companies in Tokyo","columnIds":["ceo","unknown"]}}`, nil)

	res := c.Analyze(context.Background(), chatRequest("add 3 saas companies", models.ChatModeAgent))

	require.Equal(t, models.ToolGenerate, res.Tool)
	g := res.Call.(models.GenerateParams)
	assert.Equal(t, 3, g.Count)
	assert.Equal(t, []string{"ceo"}, g.ColumnIDs)
	assert.Equal(t, models.IntentEdit, res.Intent)
}

func TestIntentClassifier_ChatModeBlocksMutation(t *testing.T) {
	_, c := classifierWithReply(`{"intent":"EDIT","tool":"enrich","reply":"I will fill the CEO column.","enrichParams":{"columnIds":["ceo"],"scope":"all"}}`, nil)

	res := c.Analyze(context.Background(), chatRequest("fill CEO", models.ChatModeChat))

	assert.Equal(t, models.IntentChat, res.Intent)
	assert.Equal(t, models.ToolNone, res.Tool)
	assert.Nil(t, res.Call)
	assert.Contains(t, res.Reply, AgentModeRequiredReply)
	assert.Equal(t, "enrich columns ceo", res.SuggestedAction)
}

func TestIntentClassifier_UnknownToolKeepsReply(t *testing.T) {
	_, c := classifierWithReply(`{"intent":"CHAT","tool":"delete_everything","reply":"I can't do that."}`, nil)

	res := c.Analyze(context.Background(), chatRequest("delete all", models.ChatModeAgent))

	assert.Equal(t, models.ToolNone, res.Tool)
	assert.Equal(t, models.IntentChat, res.Intent)
	assert.Equal(t, "I can't do that.", res.Reply)
}

func TestIntentClassifier_MissingParamsDegradeToNone(t *testing.T) {
	_, c := classifierWithReply(`{"intent":"SORT","tool":"sort","reply":"Sorted."}`, nil)

	res := c.Analyze(context.Background(), chatRequest("sort it", models.ChatModeChat))

	assert.Equal(t, models.ToolNone, res.Tool)
	assert.Equal(t, models.IntentChat, res.Intent)
	assert.Equal(t, "Sorted.", res.Reply)
}

func TestIntentClassifier_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{"gateway error", "", errors.New("boom")},
		{"empty reply", "", nil},
		{"garbage reply", "I think you want a filter", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := classifierWithReply(tt.text, tt.err)

			res := c.Analyze(context.Background(), chatRequest("hello", models.ChatModeAgent))

			assert.Equal(t, models.IntentChat, res.Intent)
			assert.Equal(t, models.ToolNone, res.Tool)
			assert.Equal(t, FallbackReply, res.Reply)
		})
	}
}

func TestIntentClassifier_EmptyMessageSkipsGateway(t *testing.T) {
	gw, c := classifierWithReply(`{}`, nil)

	res := c.Analyze(context.Background(), chatRequest("   ", models.ChatModeAgent))

	assert.Equal(t, EmptyMessageReply, res.Reply)
	assert.Equal(t, 0, gw.CallCount())
}

func TestIntentClassifier_PromptCarriesAtMostFiveSampleRows(t *testing.T) {
	gw, c := classifierWithReply(`{"intent":"CHAT","tool":"none","reply":"ok"}`, nil)

	req := chatRequest("what is this?", models.ChatModeChat)
	var rows []map[string]any
	for i := 0; i < 8; i++ {
		rows = append(rows, map[string]any{"company_name": "Sample" + string(rune('A'+i))})
	}
	req.Table = memTable(companyColumns(), rows...)
	req.Selection = models.Selection{RowIDs: rowIDs(req.Table.Rows)}

	c.Analyze(context.Background(), req)

	require.Equal(t, 1, gw.CallCount())
	prompt := gw.Calls()[0].Prompt
	assert.Contains(t, prompt, "SampleE")
	assert.NotContains(t, prompt, "SampleF")
	assert.True(t, strings.Contains(prompt, "8 row(s) selected"))
	assert.Contains(t, prompt, "Read-only mode")
	assert.True(t, gw.Calls()[0].Opts.JSONMode)
}
