package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/config"
	"cartpilot/internal/events"
	"cartpilot/internal/observability"
	"cartpilot/internal/storage"
)

const (
	StatusFetched   = "fetched"
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"

	RunStatusPlanned    = "planned"
	RunStatusCheckedOut = "checked_out"
)

// ProcessingService turns stored goal-request mail into pipeline runs.
type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	svc    *Service
	logger *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, svc *Service, logger *zap.Logger) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, svc: svc, logger: observability.OrNop(logger)}
}

type ProcessResult struct {
	RequestID  int
	RunID      int
	Skipped    bool
	ExportPath string
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	row, err := s.db.GetGoalRequestByProviderMessageID(ctx, provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	if row == nil {
		return ProcessResult{}, fmt.Errorf("%w: provider=%s messageId=%s", ErrRequestNotFound, provider, messageID)
	}
	return s.ProcessRequest(ctx, *row)
}

// ProcessPending handles fetched requests oldest first. A request whose run
// fails is marked failed and the rest still run.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (processed, skipped int, err error) {
	pending, err := s.db.ListGoalRequestsByStatus(ctx, StatusFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, row := range pending {
		if provider != "" && row.Provider != provider {
			continue
		}
		res, err := s.ProcessRequest(ctx, row)
		if errors.Is(err, ErrCatalogUnavailable) {
			continue
		}
		if err != nil {
			return processed, skipped, err
		}
		if res.Skipped {
			skipped++
		} else {
			processed++
		}
	}
	return processed, skipped, nil
}

func (s *ProcessingService) ProcessRequest(ctx context.Context, row internal.GoalRequestRow) (ProcessResult, error) {
	log := s.logger.With(zap.Int("request_id", row.ID), zap.String("provider", row.Provider))
	raw, err := os.ReadFile(row.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	goal, err := GoalFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, err
	}

	detect := DetectGoalRequest(goal.Subject, goal.Text, goal.Attachments)
	if !detect.IsGoal {
		log.Info("not a shopping request", zap.Float64("score", detect.Score))
		if err := s.db.UpdateGoalRequestStatus(ctx, row.ID, StatusSkipped); err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{RequestID: row.ID, Skipped: true}, nil
	}

	mode, ok := internal.ParseMode(s.cfg.DefaultMode)
	if !ok {
		mode = internal.ModeBalanced
	}
	res, err := s.svc.Run(ctx, goal.Text, mode, events.NewLogSink(log))
	if err != nil {
		_ = s.db.UpdateGoalRequestStatus(ctx, row.ID, StatusFailed)
		return ProcessResult{RequestID: row.ID}, err
	}

	requestID := row.ID
	runID, err := SaveRun(ctx, s.db, res, &requestID, RunStatusPlanned)
	if err != nil {
		return ProcessResult{}, err
	}

	var exportPath string
	if s.cfg.MailListenerAutoExport {
		exportPath = filepath.Join(s.cfg.OutputDir, fmt.Sprintf("cart-%d-%s.xlsx", row.ID, res.TraceID))
		if err := ExportCartToXLSX(res, exportPath); err != nil {
			return ProcessResult{}, err
		}
	}

	if err := s.db.UpdateGoalRequestStatus(ctx, row.ID, StatusProcessed); err != nil {
		return ProcessResult{}, err
	}
	log.Info("goal request processed", zap.Int("run_id", runID), zap.String("export", exportPath), zap.Float64("total", res.Cart.TotalCost))
	return ProcessResult{RequestID: row.ID, RunID: runID, ExportPath: exportPath}, nil
}

// SaveRun persists a completed run.
func SaveRun(ctx context.Context, db *storage.DB, res Result, requestID *int, status string) (int, error) {
	record := internal.RunRecord{
		TraceID:   res.TraceID,
		RequestID: requestID,
		Goal:      res.Goal,
		Mode:      res.Mode,
		Status:    status,
	}
	for _, field := range []struct {
		dst *string
		v   any
	}{
		{&record.PlanJSON, res.Plan},
		{&record.CartJSON, res.Cart},
		{&record.SavingsJSON, res.Savings},
		{&record.MetricsJSON, res.Metrics},
		{&record.CandidateJSON, res.Candidates},
	} {
		blob, err := json.Marshal(field.v)
		if err != nil {
			return 0, err
		}
		*field.dst = string(blob)
	}
	return db.InsertRun(ctx, record)
}

// LoadRun restores a saved run into a context ready for checkout or
// re-optimization.
func LoadRun(ctx context.Context, db *storage.DB, id int) (*PipelineContext, error) {
	record, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}

	pc := NewContext()
	pc.TraceID = record.TraceID
	pc.Goal = record.Goal
	pc.Mode = record.Mode
	for _, field := range []struct {
		src string
		dst any
	}{
		{record.PlanJSON, &pc.Plan},
		{record.CartJSON, &pc.Cart},
		{record.SavingsJSON, &pc.Savings},
		{record.MetricsJSON, &pc.Metrics},
		{record.CandidateJSON, &pc.Candidates},
	} {
		if err := json.Unmarshal([]byte(field.src), field.dst); err != nil {
			return nil, fmt.Errorf("run %d: %w", id, err)
		}
	}
	pc.Preferences = internal.DefaultPreferences()
	pc.State = StateComplete
	if record.Status == RunStatusCheckedOut {
		pc.State = StateCheckedOut
	}
	return pc, nil
}

// CheckoutSavedRun checks out a saved run, logging every progress snapshot
// and order confirmation against it.
func CheckoutSavedRun(ctx context.Context, db *storage.DB, svc *Service, runID int, sink events.Sink, onProgress func(internal.CheckoutProgress)) (*PipelineContext, error) {
	pc, err := LoadRun(ctx, db, runID)
	if err != nil {
		return nil, err
	}
	if pc.State == StateCheckedOut {
		return pc, fmt.Errorf("run %d is already checked out", runID)
	}

	seq := 0
	var logErr error
	err = svc.CheckoutRun(ctx, pc, sink, func(p internal.CheckoutProgress) {
		if err := db.InsertCheckoutProgress(ctx, runID, seq, p); err != nil && logErr == nil {
			logErr = err
		}
		seq++
		if onProgress != nil {
			onProgress(p)
		}
	})
	if err != nil {
		return pc, err
	}
	if logErr != nil {
		return pc, logErr
	}
	for _, c := range pc.Confirmations {
		if err := db.InsertCheckoutOrder(ctx, runID, c.SourceID, c.OrderNumber); err != nil {
			return pc, err
		}
	}
	return pc, db.UpdateRunStatus(ctx, runID, RunStatusCheckedOut)
}
