package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/cart"
	"cartpilot/internal/catalog"
	"cartpilot/internal/events"
	"cartpilot/internal/pipeline"
)

type runRequest struct {
	Goal     string `json:"goal"`
	Scenario string `json:"scenario"`
	Mode     string `json:"mode"`
}

type reoptimizeRequest struct {
	Mode string `json:"mode"`
}

type replaceLineRequest struct {
	Line        int    `json:"line"`
	AlternateID string `json:"alternateId"`
}

type pipelineResponse struct {
	RunID  int              `json:"runId,omitempty"`
	State  pipeline.State   `json:"state"`
	Result *pipeline.Result `json:"result,omitempty"`
	Events []internal.Event `json:"events,omitempty"`
}

func (a *API) listScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.Scenarios())
}

func (a *API) getPipeline(w http.ResponseWriter, _ *http.Request) {
	if !a.session.Acquire() {
		writeError(w, http.StatusConflict, "a pipeline operation is already running")
		return
	}
	defer a.session.Release()

	pc, runID := a.session.Context()
	writeJSON(w, http.StatusOK, snapshot(pc, runID, nil))
}

// explainRanked reports why an item holds its rank in the current run.
// ?source= picks one source when item ids collide.
func (a *API) explainRanked(w http.ResponseWriter, r *http.Request) {
	if !a.session.Acquire() {
		writeError(w, http.StatusConflict, "a pipeline operation is already running")
		return
	}
	defer a.session.Release()

	pc, _ := a.session.Context()
	ex, err := pc.Explain(chi.URLParam(r, "category"), chi.URLParam(r, "itemId"), r.URL.Query().Get("source"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (a *API) runPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	goal := strings.TrimSpace(req.Goal)
	if req.Scenario != "" {
		sc, ok := pipeline.ScenarioByID(req.Scenario)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown scenario", req.Scenario)
			return
		}
		goal = sc.Goal
	}
	if goal == "" {
		writeError(w, http.StatusBadRequest, "goal or scenario is required")
		return
	}
	mode := internal.ModeBalanced
	if req.Mode != "" {
		parsed, ok := internal.ParseMode(req.Mode)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown optimization mode", req.Mode)
			return
		}
		mode = parsed
	}

	if !a.session.Acquire() {
		writeError(w, http.StatusConflict, "a pipeline operation is already running")
		return
	}
	defer a.session.Release()

	ctx := r.Context()
	queue := events.NewQueue()
	pc := pipeline.NewContext()
	if err := a.svc.Execute(ctx, pc, goal, mode, queue); err != nil {
		a.session.set(pc, 0)
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrCatalogUnavailable) {
			status = http.StatusServiceUnavailable
		}
		a.logger.Warn("pipeline run failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	runID := 0
	if a.db != nil {
		id, err := pipeline.SaveRun(ctx, a.db, pc.Result(), nil, pipeline.RunStatusPlanned)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "persist run", err.Error())
			return
		}
		runID = id
	}
	a.session.set(pc, runID)
	writeJSON(w, http.StatusOK, snapshot(pc, runID, queue.Events()))
}

func (a *API) reoptimize(w http.ResponseWriter, r *http.Request) {
	var req reoptimizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	mode, ok := internal.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown optimization mode", req.Mode)
		return
	}

	if !a.session.Acquire() {
		writeError(w, http.StatusConflict, "a pipeline operation is already running")
		return
	}
	defer a.session.Release()

	pc, runID := a.session.Context()
	queue := events.NewQueue()
	if err := a.svc.Reoptimize(r.Context(), pc, mode, queue); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.persistCart(r.Context(), pc, runID); err != nil {
		writeError(w, http.StatusInternalServerError, "persist run", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot(pc, runID, queue.Events()))
}

func (a *API) replaceLine(w http.ResponseWriter, r *http.Request) {
	var req replaceLineRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	if strings.TrimSpace(req.AlternateID) == "" {
		writeError(w, http.StatusBadRequest, "alternateId is required")
		return
	}

	if !a.session.Acquire() {
		writeError(w, http.StatusConflict, "a pipeline operation is already running")
		return
	}
	defer a.session.Release()

	pc, runID := a.session.Context()
	queue := events.NewQueue()
	if err := a.svc.ReplaceLine(pc, req.Line, req.AlternateID, queue); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.persistCart(r.Context(), pc, runID); err != nil {
		writeError(w, http.StatusInternalServerError, "persist run", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot(pc, runID, queue.Events()))
}

type streamLine struct {
	Type          string                     `json:"type"`
	Event         *internal.Event            `json:"event,omitempty"`
	Progress      *internal.CheckoutProgress `json:"progress,omitempty"`
	Confirmations any                        `json:"confirmations,omitempty"`
	Message       string                     `json:"message,omitempty"`
}

// checkout streams newline-delimited JSON: narration events and progress
// snapshots as they happen, then a final done or error line.
func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	if !a.session.Acquire() {
		writeError(w, http.StatusConflict, "a pipeline operation is already running")
		return
	}
	defer a.session.Release()

	pc, runID := a.session.Context()
	if !pc.Ready() {
		writeServiceError(w, pipeline.ErrNotReady)
		return
	}
	if len(pc.Cart.Lines) == 0 {
		writeServiceError(w, pipeline.ErrEmptyCart)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	emit := func(line streamLine) {
		_ = enc.Encode(line)
		if flusher != nil {
			flusher.Flush()
		}
	}
	sink := events.Func(func(ev internal.Event) { emit(streamLine{Type: "event", Event: &ev}) })
	onProgress := func(p internal.CheckoutProgress) { emit(streamLine{Type: "progress", Progress: &p}) }

	ctx := r.Context()
	var err error
	if a.db != nil && runID > 0 {
		var saved *pipeline.PipelineContext
		saved, err = pipeline.CheckoutSavedRun(ctx, a.db, a.svc, runID, sink, onProgress)
		if saved != nil {
			saved.Ranked = pc.Ranked
			saved.Metrics = pc.Metrics
			pc = saved
			a.session.set(pc, runID)
		}
	} else {
		err = a.svc.CheckoutRun(ctx, pc, sink, onProgress)
	}
	if err != nil {
		a.logger.Warn("checkout failed", zap.Int("run_id", runID), zap.Error(err))
		emit(streamLine{Type: "error", Message: err.Error()})
		return
	}
	emit(streamLine{Type: "done", Confirmations: pc.Confirmations})
}

type productSearchResponse struct {
	Mode      string                              `json:"mode"`
	LatencyMs int64                               `json:"latencyMs"`
	Sources   []catalog.SourceReport              `json:"sources"`
	Products  map[string][]internal.CandidateItem `json:"products"`
	Total     int                                 `json:"total"`
}

// searchProducts returns up to max in-stock products per category, cheapest
// first, across every source.
func (a *API) searchProducts(w http.ResponseWriter, r *http.Request) {
	var categories []string
	for _, v := range r.URL.Query()["category"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}
	if len(categories) == 0 {
		writeError(w, http.StatusBadRequest, "at least one category is required")
		return
	}
	limit := catalog.DefaultMaxResults
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer", raw)
			return
		}
		limit = n
	}

	res, err := a.catalog.Search(r.Context(), categories)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "catalog search failed", err.Error())
		return
	}

	idx := catalog.BuildIndex(res.Products)
	out := productSearchResponse{
		Mode:      res.Mode,
		LatencyMs: res.Latency.Milliseconds(),
		Sources:   res.Sources,
		Products:  make(map[string][]internal.CandidateItem, len(categories)),
	}
	for _, c := range categories {
		items := idx.Search(c, limit)
		out.Products[c] = items
		out.Total += len(items)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := a.prefs.LoadPreferences(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load preferences", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// putPreferences merges the body over the stored preferences.
func (a *API) putPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prefs, err := a.prefs.LoadPreferences(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load preferences", err.Error())
		return
	}
	if err := decodeBody(r, &prefs); err != nil {
		writeBodyError(w, err)
		return
	}
	if errs := validatePreferences(prefs); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "invalid preferences", errs...)
		return
	}
	if err := a.prefs.SavePreferences(ctx, prefs); err != nil {
		writeError(w, http.StatusInternalServerError, "save preferences", err.Error())
		return
	}
	saved, err := a.prefs.LoadPreferences(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load preferences", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func validatePreferences(p internal.Preferences) []string {
	var errs []string
	if p.MaxDeliveryDays < 0 {
		errs = append(errs, "maxDeliveryDays must not be negative")
	}
	if p.MinRating < 0 || p.MinRating > 5 {
		errs = append(errs, "minRating must be between 0 and 5")
	}
	return errs
}

func (a *API) persistCart(ctx context.Context, pc *pipeline.PipelineContext, runID int) error {
	if a.db == nil || runID == 0 {
		return nil
	}
	cartJSON, err := json.Marshal(pc.Cart)
	if err != nil {
		return err
	}
	savingsJSON, err := json.Marshal(pc.Savings)
	if err != nil {
		return err
	}
	return a.db.UpdateRunCart(ctx, runID, pc.Mode, string(cartJSON), string(savingsJSON))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrEmptyCart), errors.Is(err, cart.ErrOverBudget):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, cart.ErrAlternateNotFound),
		errors.Is(err, pipeline.ErrNotRanked), errors.Is(err, pipeline.ErrFilteredOut):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func snapshot(pc *pipeline.PipelineContext, runID int, evs []internal.Event) pipelineResponse {
	resp := pipelineResponse{RunID: runID, State: pc.State, Events: evs}
	if pc.State == pipeline.StateComplete || pc.State == pipeline.StateCheckedOut {
		res := pc.Result()
		resp.Result = &res
	}
	return resp
}
