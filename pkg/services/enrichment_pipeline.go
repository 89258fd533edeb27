package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-crm/pkg/llm"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/prompts"
)

// MaxCandidateURLs caps the pages read per field.
const MaxCandidateURLs = 3

// EnrichmentProgressSink receives phase updates. It may be nil.
type EnrichmentProgressSink func(models.EnrichmentProgress)

func (s EnrichmentProgressSink) emit(p models.EnrichmentProgress) {
	if s != nil {
		s(p)
	}
}

// FieldRequest describes one (row, column) enrichment.
type FieldRequest struct {
	TableID   string
	TableName string
	RowID     string
	// Entity is the row's company key value.
	Entity string
	Column models.ColumnDefinition
	// OrgContext describes the organization's target customers. Required for fit columns.
	OrgContext string
	// Known holds the row's other non-empty values by column name, used for fit scoring.
	Known map[string]string
}

// EnrichmentPipeline researches one field of one entity.
type EnrichmentPipeline interface {
	// EnrichField never returns an error: "no data" is a FieldOutcome status.
	EnrichField(ctx context.Context, req FieldRequest, sink EnrichmentProgressSink) models.FieldOutcome
}

// EnrichmentPipelineConfig configures the pipeline.
type EnrichmentPipelineConfig struct {
	// MaxCandidateURLs is clamped to 1..MaxCandidateURLs. Zero means MaxCandidateURLs.
	MaxCandidateURLs int
}

type enrichmentPipeline struct {
	gateway  llm.Gateway
	keywords *prompts.Keywords
	maxURLs  int
	logger   *zap.Logger
}

// NewEnrichmentPipeline creates an enrichment pipeline.
func NewEnrichmentPipeline(gateway llm.Gateway, cfg EnrichmentPipelineConfig, logger *zap.Logger) EnrichmentPipeline {
	maxURLs := cfg.MaxCandidateURLs
	if maxURLs <= 0 || maxURLs > MaxCandidateURLs {
		maxURLs = MaxCandidateURLs
	}
	return &enrichmentPipeline{
		gateway:  gateway,
		keywords: prompts.DefaultKeywords(),
		maxURLs:  maxURLs,
		logger:   logger.Named("enrichment"),
	}
}

var _ EnrichmentPipeline = (*enrichmentPipeline)(nil)

// IsFitColumn reports whether a column holds a fit classification.
func IsFitColumn(col models.ColumnDefinition) bool {
	return col.ID == "fit_score" || prompts.DefaultKeywords().IsFitField(col.Name)
}

// fieldRun accumulates what happened across the phases of one field.
type fieldRun struct {
	discarded  string
	gatewayErr error
}

func (r *fieldRun) outcome() models.FieldOutcome {
	switch {
	case r.discarded != "":
		return models.FieldOutcome{Status: models.FieldDiscarded, Reason: r.discarded}
	case r.gatewayErr != nil:
		return models.FieldOutcome{Status: models.FieldError, Reason: r.gatewayErr.Error()}
	}
	return models.FieldOutcome{Status: models.FieldNotFound}
}

func (p *enrichmentPipeline) EnrichField(ctx context.Context, req FieldRequest, sink EnrichmentProgressSink) models.FieldOutcome {
	start := time.Now()
	progress := func(phase models.EnrichmentPhase) {
		sink.emit(models.EnrichmentProgress{RowID: req.RowID, ColumnID: req.Column.ID, Phase: phase})
	}

	var outcome models.FieldOutcome
	if IsFitColumn(req.Column) {
		outcome = p.scoreFit(ctx, req, progress)
	} else {
		outcome = p.research(ctx, req, progress)
	}

	final := models.EnrichmentProgress{RowID: req.RowID, ColumnID: req.Column.ID, Phase: models.PhaseComplete}
	switch outcome.Status {
	case models.FieldFound:
		final.Result = outcome.Result
	case models.FieldError, models.FieldCancelled:
		final.Phase = models.PhaseError
		final.Error = outcome.Reason
	}
	sink.emit(final)

	p.logger.Debug("Field enrichment finished",
		zap.String("row_id", req.RowID),
		zap.String("column_id", req.Column.ID),
		zap.String("status", string(outcome.Status)),
		zap.String("reason", outcome.Reason),
		zap.Duration("elapsed", time.Since(start)))
	return outcome
}

func (p *enrichmentPipeline) research(ctx context.Context, req FieldRequest, progress func(models.EnrichmentPhase)) models.FieldOutcome {
	run := &fieldRun{}

	if ctx.Err() != nil {
		return cancelledOutcome()
	}
	progress(models.PhaseDiscovery)
	urls, err := p.discover(p.phaseContext(ctx, req, models.PhaseDiscovery), req)
	if err != nil {
		run.gatewayErr = err
	}

	for _, u := range urls {
		if ctx.Err() != nil {
			return cancelledOutcome()
		}
		progress(models.PhaseExtraction)
		if out, ok := p.extract(p.phaseContext(ctx, req, models.PhaseExtraction), req, u, run); ok {
			return out
		}
	}

	if p.keywords.IsFinancialField(req.Column.Name) {
		if ctx.Err() != nil {
			return cancelledOutcome()
		}
		progress(models.PhaseFinancial)
		if out, ok := p.financial(p.phaseContext(ctx, req, models.PhaseFinancial), req, run); ok {
			return out
		}
	}

	return run.outcome()
}

func cancelledOutcome() models.FieldOutcome {
	return models.FieldOutcome{Status: models.FieldCancelled, Reason: context.Canceled.Error()}
}

func (p *enrichmentPipeline) phaseContext(ctx context.Context, req FieldRequest, phase models.EnrichmentPhase) context.Context {
	return llm.WithEnrichmentContext(ctx, req.TableID, req.RowID, req.Column.ID, string(phase))
}

// ============================================================================
// Discovery
// ============================================================================

// parseStringList reads a list of strings from a model reply that is either a
// bare JSON array or an object holding the list under one of keys.
func parseStringList(text string, keys ...string) ([]string, error) {
	raw, err := llm.ParseJSON[json.RawMessage](text)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return jsonutil.FlexibleStringSlice(raw), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &llm.ParseError{Kind: llm.ParseErrorMalformed, Cause: err}
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return jsonutil.FlexibleStringSlice(v), nil
		}
	}
	return nil, &llm.ParseError{Kind: llm.ParseErrorMalformed, Cause: errors.New("no list field in reply")}
}

// discover returns candidate first-party URLs. Any failure yields no URLs; the
// error is returned only so the outcome can report it.
func (p *enrichmentPipeline) discover(ctx context.Context, req FieldRequest) ([]string, error) {
	prompt := prompts.BuildDiscoveryPrompt(prompts.DiscoveryInput{
		Entity:         req.Entity,
		FieldName:      req.Column.Name,
		SearchKeywords: p.keywords.SearchKeywordsFor(req.Column.Name),
		Excluded:       p.keywords.ExcludedDomains,
		MaxURLs:        p.maxURLs,
	})

	result, err := p.gateway.Generate(ctx, prompt, llm.GenerateOptions{WebSearch: true})
	if err != nil {
		p.logger.Warn("Discovery call failed",
			zap.String("entity", req.Entity),
			zap.String("column_id", req.Column.ID),
			zap.Error(err))
		return nil, err
	}

	urls, err := parseStringList(result.Text, "urls", "URLs")
	if err != nil {
		p.logger.Debug("Discovery reply unparseable",
			zap.String("entity", req.Entity),
			zap.Error(err))
		return nil, nil
	}
	return p.filterCandidateURLs(urls), nil
}

// filterCandidateURLs drops invalid, duplicate and excluded URLs and applies the cap.
func (p *enrichmentPipeline) filterCandidateURLs(urls []string) []string {
	out := make([]string, 0, p.maxURLs)
	seen := map[string]bool{}
	for _, raw := range urls {
		if len(out) == p.maxURLs {
			break
		}
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		key := strings.ToLower(u.Host) + strings.TrimSuffix(u.EscapedPath(), "/") + "?" + u.RawQuery
		if seen[key] || p.keywords.IsExcludedURL(u.String()) {
			continue
		}
		seen[key] = true
		out = append(out, u.String())
	}
	return out
}

// ============================================================================
// Extraction
// ============================================================================

type extractionReply struct {
	Value      json.RawMessage `json:"value"`
	Confidence string          `json:"confidence"`
	SourceURL  string          `json:"source_url"`
	Reasoning  string          `json:"reasoning"`
}

func (p *enrichmentPipeline) extract(ctx context.Context, req FieldRequest, pageURL string, run *fieldRun) (models.FieldOutcome, bool) {
	prompt := prompts.BuildExtractionPrompt(prompts.ExtractionInput{
		Entity:      req.Entity,
		FieldName:   req.Column.Name,
		Description: req.Column.Description,
		Numeric:     req.Column.Type == models.ColumnTypeNumber,
		URL:         pageURL,
	})

	result, err := p.gateway.Generate(ctx, prompt, llm.GenerateOptions{
		System:    prompts.BuildExtractionSystemMessage(),
		PageFetch: true,
		URLs:      []string{pageURL},
		JSONMode:  true,
	})
	if err != nil {
		p.logger.Warn("Extraction call failed",
			zap.String("entity", req.Entity),
			zap.String("url", pageURL),
			zap.Error(err))
		run.gatewayErr = err
		return models.FieldOutcome{}, false
	}

	reply, err := llm.ParseJSON[extractionReply](result.Text)
	if err != nil {
		p.logger.Debug("Extraction reply unparseable", zap.String("url", pageURL), zap.Error(err))
		return models.FieldOutcome{}, false
	}
	return p.accept(req, reply, pageURL, run)
}

func (p *enrichmentPipeline) financial(ctx context.Context, req FieldRequest, run *fieldRun) (models.FieldOutcome, bool) {
	result, err := p.gateway.Generate(ctx, prompts.BuildFinancialPrompt(req.Entity, req.Column.Name), llm.GenerateOptions{
		System:    prompts.BuildExtractionSystemMessage(),
		WebSearch: true,
	})
	if err != nil {
		p.logger.Warn("Financial lookup failed",
			zap.String("entity", req.Entity),
			zap.String("column_id", req.Column.ID),
			zap.Error(err))
		run.gatewayErr = err
		return models.FieldOutcome{}, false
	}

	reply, err := llm.ParseJSON[extractionReply](result.Text)
	if err != nil {
		p.logger.Debug("Financial reply unparseable", zap.Error(err))
		return models.FieldOutcome{}, false
	}

	source := strings.TrimSpace(reply.SourceURL)
	if source == "" && len(result.SourceURLs) > 0 {
		source = result.SourceURLs[0]
	}
	return p.accept(req, reply, source, run)
}

// accept applies the confidence gate and numeric coercion to one reply.
func (p *enrichmentPipeline) accept(req FieldRequest, reply extractionReply, source string, run *fieldRun) (models.FieldOutcome, bool) {
	value := strings.TrimSpace(jsonutil.FlexibleStringValue(reply.Value))
	confidence := models.ParseConfidence(strings.TrimSpace(reply.Confidence))

	if ok, reason := GateResult(value, confidence, p.keywords); !ok {
		if value != "" {
			run.discarded = reason
		}
		return models.FieldOutcome{}, false
	}

	var stored any = value
	if req.Column.Type == models.ColumnTypeNumber {
		n, ok := CoerceNumber(value)
		if !ok {
			run.discarded = "not a number: " + value
			return models.FieldOutcome{}, false
		}
		stored = n
	}

	return models.FieldOutcome{
		Status: models.FieldFound,
		Result: &models.EnrichmentResult{
			Field:      req.Column.ID,
			Value:      stored,
			Confidence: confidence,
			SourceURL:  source,
		},
	}, true
}

// ============================================================================
// Fit score
// ============================================================================

type fitReply struct {
	Fit       string `json:"fit"`
	Reasoning string `json:"reasoning"`
}

// scoreFit classifies the entity against the organization context. The label
// is written verbatim and bypasses the confidence gate.
func (p *enrichmentPipeline) scoreFit(ctx context.Context, req FieldRequest, progress func(models.EnrichmentPhase)) models.FieldOutcome {
	if strings.TrimSpace(req.OrgContext) == "" {
		return models.FieldOutcome{Status: models.FieldNotFound, Reason: "no organization context"}
	}
	if ctx.Err() != nil {
		return cancelledOutcome()
	}

	progress(models.PhaseExtraction)
	result, err := p.gateway.Generate(p.phaseContext(ctx, req, models.PhaseExtraction),
		prompts.BuildFitPrompt(req.Entity, req.OrgContext, req.Known),
		llm.GenerateOptions{WebSearch: true})
	if err != nil {
		p.logger.Warn("Fit classification failed",
			zap.String("entity", req.Entity),
			zap.Error(err))
		return models.FieldOutcome{Status: models.FieldError, Reason: err.Error()}
	}

	reply, err := llm.ParseJSON[fitReply](result.Text)
	if err != nil {
		return models.FieldOutcome{Status: models.FieldNotFound, Reason: "unparseable fit reply"}
	}

	label := models.Confidence(strings.ToLower(strings.TrimSpace(reply.Fit)))
	switch label {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		return models.FieldOutcome{Status: models.FieldNotFound, Reason: "invalid fit label: " + reply.Fit}
	}

	return models.FieldOutcome{
		Status: models.FieldFound,
		Result: &models.EnrichmentResult{
			Field:      req.Column.ID,
			Value:      string(label),
			Confidence: label,
		},
	}
}
