package core

// pipeline.go runs bulk ingestion as a small state machine:
//
//	idle -> parsing -> normalizing -> validating -> committing -> done
//
// Any failure moves the run to rejected. Failures are collected for the
// whole phase before rejecting, so the caller sees every bad row at once,
// and the store is only written when no row failed. A batch is stored
// completely or not at all.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/metrics"
	"github.com/JonMunkholm/leadintake/internal/pathmap"
	"github.com/JonMunkholm/leadintake/internal/schema"
	"github.com/JonMunkholm/leadintake/internal/store"
)

// Pipeline validates and persists leads, and writes exports.
type Pipeline struct {
	store     store.Store
	validator *RecordValidator
	metrics   *metrics.Metrics
	tempDir   string
	now       func() time.Time
	onPhase   PhaseFunc
	normalize NormalizeOptions
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMetrics records ingest and export metrics on m.
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTempDir sets the directory export files are written to.
func WithTempDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.tempDir = dir }
}

// WithClock replaces time.Now for validation and file naming.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
		p.validator = p.validator.WithClock(now)
	}
}

// WithPhaseFunc registers a callback for ingest phase transitions.
func WithPhaseFunc(fn PhaseFunc) PipelineOption {
	return func(p *Pipeline) { p.onPhase = fn }
}

// WithNormalizeOptions overrides the row separator and sales column.
func WithNormalizeOptions(opts NormalizeOptions) PipelineOption {
	return func(p *Pipeline) { p.normalize = opts }
}

// NewPipeline creates a pipeline writing to s.
func NewPipeline(s store.Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:     s,
		validator: NewRecordValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.normalize = p.normalize.withDefaults()
	return p
}

// Validate checks a single record. applied_at defaults to now.
func (p *Pipeline) Validate(rec *pathmap.Record) (*schema.Lead, error) {
	return p.validator.Validate(rec)
}

// IngestRecord validates one nested record and stores it.
func (p *Pipeline) IngestRecord(ctx context.Context, rec *pathmap.Record) (*schema.StoredLead, error) {
	lead, err := p.validator.Validate(rec)
	if err != nil {
		p.metrics.ObserveIngest("record", "rejected", string(PhaseValidating), 0, 1, 0)
		return nil, err
	}
	stored, err := p.store.Create(ctx, lead)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveIngest("record", "committed", string(PhaseDone), 1, 0, 0)
	return stored, nil
}

// ingestRun carries the state of one Ingest call.
type ingestRun struct {
	p      *Pipeline
	result *IngestResult
	logger *slog.Logger
	start  time.Time
}

func (r *ingestRun) enter(phase Phase) {
	from := r.result.Phase
	r.result.Phase = phase
	r.logger.Debug("ingest phase", "from", from, "to", phase)
	if r.p.onPhase != nil {
		r.p.onPhase(r.result.IngestID, from, phase)
	}
}

// reject ends the run in the rejected phase and returns err.
func (r *ingestRun) reject(failed Phase, format string, err error) (*IngestResult, error) {
	r.enter(PhaseRejected)
	r.result.Duration = time.Since(r.start)
	r.p.metrics.ObserveIngest(format, "rejected", string(failed), 0, len(r.result.Failures), r.result.Duration)
	r.logger.Info("ingest rejected",
		"failed_phase", failed,
		"rows", r.result.Rows,
		"failed_rows", len(r.result.Failures),
		"error", err,
	)
	return r.result, err
}

// Ingest parses a lead file and stores every row, or none.
//
// The returned result is non-nil even on error; when rows fail it lists
// them and the error is a *BatchValidationError. The file's extension
// selects the parser and is checked before data is read.
func (p *Pipeline) Ingest(ctx context.Context, fileName string, data []byte, opts IngestOptions) (*IngestResult, error) {
	run := &ingestRun{
		p: p,
		result: &IngestResult{
			IngestID: uuid.NewString(),
			FileName: fileName,
			Phase:    PhaseIdle,
		},
		start: time.Now(),
	}
	run.logger = logging.WithFields(ctx,
		"file", fileName,
		"ingest_id", run.result.IngestID,
		"client_ip", ClientIPFromContext(ctx),
	)

	// parsing
	run.enter(PhaseParsing)
	ext, err := ParseExt(fileName)
	if err != nil {
		return run.reject(PhaseParsing, "unknown", err)
	}
	format := string(ext)

	rows, err := readRows(ctx, ext, data, opts)
	if err != nil {
		return run.reject(PhaseParsing, format, err)
	}
	run.result.Rows = len(rows)
	run.logger.Info("ingest parsed", "format", format, "rows", len(rows))

	// normalizing
	run.enter(PhaseNormalizing)
	records := make([]*pathmap.Record, len(rows))
	for i, row := range rows {
		rec, err := NormalizeRow(i, row, p.normalize)
		if err != nil {
			failure, ok := collisionFailure(err)
			if !ok {
				return run.reject(PhaseNormalizing, format, err)
			}
			run.result.Failures = append(run.result.Failures, failure)
			continue
		}
		records[i] = rec
	}
	if len(run.result.Failures) > 0 {
		return run.reject(PhaseNormalizing, format, run.batchError(PhaseNormalizing))
	}

	// validating
	run.enter(PhaseValidating)
	validator := p.validator.Strict()
	leads := make([]*schema.Lead, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return run.reject(PhaseValidating, format, err)
		}
		lead, err := validator.Validate(rec)
		if err != nil {
			var sve *SchemaValidationError
			if !errors.As(err, &sve) {
				return run.reject(PhaseValidating, format, &RowError{Index: i, Err: err})
			}
			run.result.Failures = append(run.result.Failures, RowFailure{Row: i + 1, Errors: sve.Errors})
			continue
		}
		if opts.IsTest != nil {
			lead.Meta.IsTest = *opts.IsTest
		}
		leads = append(leads, lead)
	}
	if len(run.result.Failures) > 0 {
		return run.reject(PhaseValidating, format, run.batchError(PhaseValidating))
	}

	// committing
	run.enter(PhaseCommitting)
	created, err := p.store.CreateMany(ctx, leads)
	if err != nil {
		return run.reject(PhaseCommitting, format, err)
	}
	run.result.Created = created

	run.enter(PhaseDone)
	run.result.Duration = time.Since(run.start)
	p.metrics.ObserveIngest(format, "committed", string(PhaseDone), created, 0, run.result.Duration)
	run.logger.Info("ingest committed", "created", created, "duration", run.result.Duration)
	return run.result, nil
}

func (r *ingestRun) batchError(phase Phase) error {
	return &BatchValidationError{
		Phase:    phase,
		Rows:     r.result.Rows,
		Failures: r.result.Failures,
	}
}

// readRows drains a RowSource. A file with a header and no data rows is
// empty.
func readRows(ctx context.Context, ext FileExt, data []byte, opts IngestOptions) ([]Row, error) {
	src, err := OpenTable(ext, data, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(rows)+1, err)
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}
