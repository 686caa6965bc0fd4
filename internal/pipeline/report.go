package pipeline

import (
	"context"
	"errors"
	"fmt"

	"cartpilot/internal"
	"cartpilot/internal/storage"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrRequestNotFound = errors.New("goal request not found")
)

// RunReport is a saved run with the request it came from and its checkout log.
type RunReport struct {
	Run      internal.RunRecord
	Request  *internal.GoalRequestRow
	Orders   []storage.CheckoutOrderRow
	Progress []internal.CheckoutProgress
}

func LoadRunReport(ctx context.Context, db *storage.DB, runID int) (*RunReport, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}

	report := &RunReport{Run: *run}
	if run.RequestID != nil {
		if report.Request, err = db.GetGoalRequestByID(ctx, *run.RequestID); err != nil {
			return nil, err
		}
	}
	if report.Orders, err = db.ListCheckoutOrders(ctx, runID); err != nil {
		return nil, err
	}
	if report.Progress, err = db.ListCheckoutProgress(ctx, runID); err != nil {
		return nil, err
	}
	return report, nil
}

// RequestReport is a goal request and the most recent run made from it, if any.
type RequestReport struct {
	Request   internal.GoalRequestRow
	LatestRun *internal.RunRecord
}

func LoadRequestReport(ctx context.Context, db *storage.DB, requestID int) (*RequestReport, error) {
	row, err := db.GetGoalRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("goal request %d: %w", requestID, ErrRequestNotFound)
	}
	run, err := db.LatestRunForRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &RequestReport{Request: *row, LatestRun: run}, nil
}
