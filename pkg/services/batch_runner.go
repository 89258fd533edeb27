package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/llm"
	"github.com/ekaya-inc/ekaya-crm/pkg/logging"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/prompts"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
)

// RefusedNoKeyColumn is the BatchResult.Refused reason when a table has no company key column.
const RefusedNoKeyColumn = "no company key column"

// DefaultMaxGenerateCount caps GenerateRows when no limit is configured.
const DefaultMaxGenerateCount = 50

// ProgressFunc receives batch progress. Calls are serialized and Completed
// never decreases. It may be nil.
type ProgressFunc func(models.BatchProgress)

// EnrichRequest targets existing rows.
type EnrichRequest struct {
	Table *models.Table
	// RowIDs selects rows; empty means all rows.
	RowIDs     []string
	ColumnIDs  []string
	OrgContext string
	// FieldSink receives per-field phase updates. With more than one worker it
	// is called from several goroutines.
	FieldSink EnrichmentProgressSink
}

// GenerateRequest adds Count new rows and enriches them.
type GenerateRequest struct {
	Table  *models.Table
	Count  int
	Prompt string
	// ColumnIDs to enrich on the new rows; empty means every non-key column.
	ColumnIDs  []string
	OrgContext string
	FieldSink  EnrichmentProgressSink
}

// BatchRunner runs enrichment over many rows. Every per-row or per-field
// failure is tallied in the BatchResult; only validation problems are errors.
// The returned Table is a new value and the input is never modified.
type BatchRunner interface {
	EnrichRows(ctx context.Context, req EnrichRequest, onProgress ProgressFunc) (*models.Table, *models.BatchResult, error)
	GenerateRows(ctx context.Context, req GenerateRequest, onProgress ProgressFunc) (*models.Table, *models.BatchResult, error)
}

// BatchRunnerConfig configures a BatchRunner.
type BatchRunnerConfig struct {
	// MaxConcurrentRows bounds row-level parallelism, clamped to 1..5.
	MaxConcurrentRows int
	MaxGenerateCount  int
}

type batchRunner struct {
	store    repositories.TableRepository
	pipeline EnrichmentPipeline
	gateway  llm.Gateway
	pool     *llm.WorkerPool
	maxGen   int
	logger   *zap.Logger
}

// NewBatchRunner creates a batch runner.
func NewBatchRunner(
	store repositories.TableRepository,
	pipeline EnrichmentPipeline,
	gateway llm.Gateway,
	cfg BatchRunnerConfig,
	logger *zap.Logger,
) BatchRunner {
	maxGen := cfg.MaxGenerateCount
	if maxGen <= 0 {
		maxGen = DefaultMaxGenerateCount
	}
	return &batchRunner{
		store:    store,
		pipeline: pipeline,
		gateway:  gateway,
		pool:     llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.MaxConcurrentRows}, logger),
		maxGen:   maxGen,
		logger:   logger.Named("batch-runner"),
	}
}

var _ BatchRunner = (*batchRunner)(nil)

func (s *batchRunner) EnrichRows(ctx context.Context, req EnrichRequest, onProgress ProgressFunc) (*models.Table, *models.BatchResult, error) {
	start := time.Now()
	if req.Table == nil {
		return nil, nil, apperrors.NewValidationError("table", "table is required")
	}
	table := req.Table
	result := &models.BatchResult{Errors: []string{}}

	keyCol, ok := ResolveCompanyKeyColumn(table.Columns)
	if !ok {
		s.logger.Warn("Enrichment refused: no company key column",
			zap.String("table_id", table.ID.String()))
		result.Refused = RefusedNoKeyColumn
		return table, result, nil
	}

	targets, err := targetColumns(table, req.ColumnIDs, keyCol.ID, false)
	if err != nil {
		return nil, nil, err
	}

	var rows []models.Row
	for _, row := range table.RowsByID(req.RowIDs) {
		if row.IsBlank(keyCol.ID) {
			result.Skipped++
			continue
		}
		rows = append(rows, row)
	}

	table = s.fanOut(ctx, table, *keyCol, rows, targets, req.OrgContext, req.FieldSink, onProgress, result)
	result.DurationMs = time.Since(start).Milliseconds()

	s.logger.Info("Enrichment batch finished",
		zap.String("table_id", table.ID.String()),
		zap.Int("rows", len(rows)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("fields_written", result.Fields),
		zap.Bool("cancelled", result.Cancelled),
		zap.Int64("duration_ms", result.DurationMs))
	return table, result, nil
}

func (s *batchRunner) GenerateRows(ctx context.Context, req GenerateRequest, onProgress ProgressFunc) (*models.Table, *models.BatchResult, error) {
	start := time.Now()
	if req.Table == nil {
		return nil, nil, apperrors.NewValidationError("table", "table is required")
	}
	if req.Count <= 0 {
		return nil, nil, apperrors.NewValidationError("count", "count must be positive")
	}
	if req.Count > s.maxGen {
		return nil, nil, apperrors.NewValidationError("count", fmt.Sprintf("count must be at most %d", s.maxGen))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, nil, apperrors.NewValidationError("prompt", "prompt is required")
	}

	table := req.Table
	result := &models.BatchResult{Errors: []string{}}

	keyCol, ok := ResolveCompanyKeyColumn(table.Columns)
	if !ok {
		s.logger.Warn("Generation refused: no company key column",
			zap.String("table_id", table.ID.String()))
		result.Refused = RefusedNoKeyColumn
		return table, result, nil
	}

	targets, err := targetColumns(table, req.ColumnIDs, keyCol.ID, true)
	if err != nil {
		return nil, nil, err
	}

	names := s.generateNames(ctx, table, keyCol.ID, req.Count, req.Prompt)

	// Every name is one unit of work; a failed create completes it as failed.
	progress := models.BatchProgress{Total: len(names)}
	report := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}
	report()

	var created []models.Row
	for _, name := range names {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		row, err := s.store.CreateRow(ctx, table.ID, map[string]any{keyCol.ID: name})
		if err != nil {
			s.logger.Error("Failed to create generated row",
				zap.String("table_id", table.ID.String()),
				zap.String("name", name),
				zap.Error(err))
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", name, logging.SanitizeError(err)))
			progress.Completed++
			progress.Failed, progress.CurrentItem = result.Failed, name
			report()
			continue
		}
		created = append(created, *row)
	}
	table = table.AppendRows(created...)

	if !result.Cancelled {
		table = s.fanOut(ctx, table, *keyCol, created, targets, req.OrgContext, req.FieldSink, onProgress, result)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	s.logger.Info("Generation batch finished",
		zap.String("table_id", table.ID.String()),
		zap.Int("requested", req.Count),
		zap.Int("created", len(created)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Bool("cancelled", result.Cancelled),
		zap.Int64("duration_ms", result.DurationMs))
	return table, result, nil
}

// targetColumns resolves the columns to enrich. The key column is never a
// target. With allowEmpty, no ids means every other column.
func targetColumns(table *models.Table, ids []string, keyID string, allowEmpty bool) ([]models.ColumnDefinition, error) {
	var out []models.ColumnDefinition
	if len(ids) == 0 {
		if !allowEmpty {
			return nil, apperrors.NewValidationError("columnIds", "at least one target column is required")
		}
		for _, c := range table.SortedColumns() {
			if c.ID != keyID {
				out = append(out, c)
			}
		}
		return out, nil
	}

	seen := map[string]bool{}
	for _, id := range ids {
		col, ok := table.Column(id)
		if !ok {
			return nil, apperrors.NewValidationError("columnIds", fmt.Sprintf("unknown column %q", id))
		}
		if col.ID == keyID || seen[col.ID] {
			continue
		}
		seen[col.ID] = true
		out = append(out, *col)
	}
	if len(out) == 0 && !allowEmpty {
		return nil, apperrors.NewValidationError("columnIds", "the company key column cannot be enriched")
	}
	return out, nil
}

// ============================================================================
// Name generation
// ============================================================================

// generateNames returns exactly count names: the model's names, deduplicated
// and excluding existing keys, padded with "<Noun> N" placeholders.
func (s *batchRunner) generateNames(ctx context.Context, table *models.Table, keyID string, count int, request string) []string {
	existing := map[string]bool{}
	var existingList []string
	for _, row := range table.Rows {
		if v := strings.TrimSpace(row.Value(keyID)); v != "" {
			if !existing[strings.ToLower(v)] && len(existingList) < 50 {
				existingList = append(existingList, v)
			}
			existing[strings.ToLower(v)] = true
		}
	}

	noun := prompts.EntityNoun(table.Name)
	prompt := prompts.BuildNamesPrompt(prompts.NamesInput{
		Count:    count,
		Request:  request,
		Noun:     noun,
		Existing: existingList,
	})

	var names []string
	result, err := s.gateway.Generate(ctx, prompt, llm.GenerateOptions{WebSearch: true})
	if err != nil {
		s.logger.Warn("Name generation failed, using placeholders",
			zap.String("table_id", table.ID.String()),
			zap.Error(err))
	} else if list, err := parseStringList(result.Text, "names", "companies", "items"); err != nil {
		s.logger.Warn("Name generation reply unparseable, using placeholders",
			zap.String("table_id", table.ID.String()),
			zap.Error(err))
	} else {
		for _, n := range list {
			n = strings.TrimSpace(n)
			key := strings.ToLower(n)
			if n == "" || existing[key] {
				continue
			}
			existing[key] = true
			names = append(names, n)
			if len(names) == count {
				break
			}
		}
	}

	for i := len(names); i < count; i++ {
		names = append(names, fmt.Sprintf("%s %d", noun, i+1))
	}
	return names
}

// ============================================================================
// Row fan-out
// ============================================================================

// rowDelta is what enriching one row produced.
type rowDelta struct {
	row         models.Row
	entity      string
	values      map[string]any
	attempted   int
	fieldErrors []string
	cancelled   bool
}

func (d rowDelta) failed() bool {
	return d.attempted > 0 && len(d.fieldErrors) == d.attempted
}

// fanOut enriches rows through the worker pool. A single collector merges each
// finished row into a new Table value and writes it back, so progress and the
// snapshot only ever move forward.
func (s *batchRunner) fanOut(
	ctx context.Context,
	table *models.Table,
	keyCol models.ColumnDefinition,
	rows []models.Row,
	targets []models.ColumnDefinition,
	orgContext string,
	sink EnrichmentProgressSink,
	onProgress ProgressFunc,
	result *models.BatchResult,
) *models.Table {
	// Units already settled by the caller (failed creates) stay in the tally.
	settled := result.Successful + result.Failed
	progress := models.BatchProgress{
		Total:      len(rows) + settled,
		Completed:  settled,
		Successful: result.Successful,
		Failed:     result.Failed,
	}
	report := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}
	report()

	if len(rows) == 0 || len(targets) == 0 {
		if len(targets) == 0 {
			result.Successful += len(rows)
			progress.Completed += len(rows)
			progress.Successful = result.Successful
			if len(rows) > 0 {
				report()
			}
		}
		return table
	}

	// Workers read the snapshot taken here; only the collector replaces table.
	base := table
	items := make([]llm.WorkItem[rowDelta], 0, len(rows))
	for _, row := range rows {
		items = append(items, llm.WorkItem[rowDelta]{
			ID: row.ID,
			Execute: func(ctx context.Context) (rowDelta, error) {
				return s.enrichRow(ctx, base, keyCol, row, targets, orgContext, sink)
			},
		})
	}

	// Writes use a context that outlives cancellation so a finished row is
	// never half-merged.
	writeCtx := context.WithoutCancel(ctx)
	var fitLabels map[string][]string

	llm.Process(ctx, s.pool, items, func(res llm.WorkResult[rowDelta]) {
		delta := res.Result
		if res.Err != nil {
			progress.Completed++
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", delta.entity, logging.SanitizeError(res.Err)))
			progress.Failed, progress.CurrentItem = result.Failed, delta.entity
			report()
			return
		}

		if len(delta.values) > 0 {
			updated, err := s.store.UpdateRow(writeCtx, table.ID, delta.row.ID, delta.values)
			if err != nil {
				s.logger.Error("Failed to write enriched row",
					zap.String("table_id", table.ID.String()),
					zap.String("row_id", delta.row.ID),
					zap.Error(err))
				if !delta.cancelled {
					progress.Completed++
					result.Failed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: write failed: %s", delta.entity, logging.SanitizeError(err)))
					progress.Failed, progress.CurrentItem = result.Failed, delta.entity
					report()
				}
				return
			}
			table = table.WithRow(*updated)
			result.Fields += len(delta.values)
			fitLabels = collectFitLabels(fitLabels, targets, delta.values)
		}

		if delta.cancelled {
			return
		}
		progress.Completed++
		if delta.failed() {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", delta.entity, delta.fieldErrors[0]))
		} else {
			result.Successful++
		}
		progress.Successful, progress.Failed, progress.CurrentItem = result.Successful, result.Failed, delta.entity
		report()
	})

	if ctx.Err() != nil && progress.Completed < progress.Total {
		result.Cancelled = true
	}
	return s.ensureTagOptions(writeCtx, table, fitLabels)
}

// enrichRow runs the pipeline for each target column in turn. A panic in the
// pipeline is turned into a row error so siblings keep running.
func (s *batchRunner) enrichRow(
	ctx context.Context,
	table *models.Table,
	keyCol models.ColumnDefinition,
	row models.Row,
	targets []models.ColumnDefinition,
	orgContext string,
	sink EnrichmentProgressSink,
) (delta rowDelta, err error) {
	delta = rowDelta{
		row:    row,
		entity: strings.TrimSpace(row.Value(keyCol.ID)),
		values: map[string]any{},
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Row enrichment panicked",
				zap.String("row_id", row.ID),
				zap.Any("panic", r))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	known := knownValues(table, row, keyCol.ID)
	for _, col := range targets {
		if ctx.Err() != nil {
			delta.cancelled = true
			return delta, nil
		}
		outcome := s.pipeline.EnrichField(ctx, FieldRequest{
			TableID:    table.ID.String(),
			TableName:  table.Name,
			RowID:      row.ID,
			Entity:     delta.entity,
			Column:     col,
			OrgContext: orgContext,
			Known:      known,
		}, sink)

		switch outcome.Status {
		case models.FieldCancelled:
			delta.cancelled = true
			return delta, nil
		case models.FieldFound:
			delta.values[col.ID] = outcome.Result.Value
			known[col.Name] = models.Stringify(outcome.Result.Value)
		case models.FieldError:
			delta.fieldErrors = append(delta.fieldErrors, fmt.Sprintf("%s: %s", col.Name, outcome.Reason))
		}
		delta.attempted++
	}
	return delta, nil
}

func knownValues(table *models.Table, row models.Row, keyID string) map[string]string {
	known := map[string]string{}
	for _, c := range table.Columns {
		if c.ID == keyID {
			continue
		}
		if v := strings.TrimSpace(row.Value(c.ID)); v != "" {
			known[c.Name] = v
		}
	}
	return known
}

func collectFitLabels(acc map[string][]string, targets []models.ColumnDefinition, values map[string]any) map[string][]string {
	for _, col := range targets {
		if col.Type != models.ColumnTypeTag || !IsFitColumn(col) {
			continue
		}
		if v, ok := values[col.ID]; ok {
			if acc == nil {
				acc = map[string][]string{}
			}
			acc[col.ID] = append(acc[col.ID], models.Stringify(v))
		}
	}
	return acc
}

var fitLabelColors = map[string]string{
	string(models.ConfidenceHigh):   "green",
	string(models.ConfidenceMedium): "yellow",
	string(models.ConfidenceLow):    "gray",
}

// ensureTagOptions adds fit labels that a tag column does not offer yet.
func (s *batchRunner) ensureTagOptions(ctx context.Context, table *models.Table, labels map[string][]string) *models.Table {
	if len(labels) == 0 {
		return table
	}

	cols := make([]models.ColumnDefinition, len(table.Columns))
	copy(cols, table.Columns)
	changed := false
	for i := range cols {
		for _, label := range labels[cols[i].ID] {
			if cols[i].HasTagLabel(label) {
				continue
			}
			cols[i].Options = append([]models.TagOption(nil), cols[i].Options...)
			if err := cols[i].AddTagOption(models.TagOption{Label: label, Color: fitLabelColors[label]}); err == nil {
				changed = true
			}
		}
	}
	if !changed {
		return table
	}

	if err := s.store.UpdateColumns(ctx, table.ID, cols); err != nil {
		s.logger.Error("Failed to add fit tag options",
			zap.String("table_id", table.ID.String()),
			zap.Error(err))
		return table
	}
	return table.WithColumns(cols)
}
