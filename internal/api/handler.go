package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/ensemble"
	"github.com/securepay-ai/sentinel/internal/pipeline"
	"github.com/securepay-ai/sentinel/internal/repository"
	"github.com/securepay-ai/sentinel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	cfg      *domain.Config
	orch     *pipeline.Orchestrator
	repo     domain.Repository
	cache    domain.Cache
	engine   *rules.Engine
	scorer   *ensemble.Scorer
	registry *ensemble.Registry
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(cfg *domain.Config, orch *pipeline.Orchestrator, repo domain.Repository, cache domain.Cache, engine *rules.Engine, scorer *ensemble.Scorer, registry *ensemble.Registry, version string) *Handler {
	return &Handler{
		cfg:      cfg,
		orch:     orch,
		repo:     repo,
		cache:    cache,
		engine:   engine,
		scorer:   scorer,
		registry: registry,
		version:  version,
	}
}

// PagedResponse is the envelope for paginated list endpoints.
type PagedResponse struct {
	Items      any `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Analyze handles POST /api/v1/transactions/analyze. The full pipeline runs
// synchronously inside the latency budget; a resubmitted transaction id gets
// the stored assessment back with duplicate set.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp, err := h.orch.Analyze(r.Context(), &req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// BatchItem is the per-transaction outcome of a batch submission.
type BatchItem struct {
	TransactionID string                  `json:"transaction_id"`
	Assessment    *domain.AnalyzeResponse `json:"assessment,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// AnalyzeBatch handles POST /api/v1/transactions/analyze/batch. Transactions
// are assessed independently and in order; one bad item does not fail the
// rest of the batch.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []*domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(reqs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch must contain at least one transaction",
		})
		return
	}
	if len(reqs) > h.cfg.Pipeline.MaxBatch {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("batch size %d exceeds the maximum of %d", len(reqs), h.cfg.Pipeline.MaxBatch),
		})
		return
	}

	items := make([]BatchItem, 0, len(reqs))
	for _, req := range reqs {
		item := BatchItem{}
		if req != nil {
			item.TransactionID = req.TransactionID
		}

		resp, err := h.orch.Analyze(r.Context(), req)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.TransactionID = resp.TransactionID
			item.Assessment = resp
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "txID")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetAssessment retrieves the assessment for a transaction.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "txID")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get assessment", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAssessments returns assessments filtered and paged by query parameters.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	f, err := parseAssessmentFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	items, total, err := h.repo.ListAssessments(r.Context(), f)
	if err != nil {
		slog.Error("failed to list assessments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list assessments",
		})
		return
	}

	if items == nil {
		items = []*domain.FraudAssessment{}
	}
	writePage(w, items, total, f.Page, f.PageSize)
}

// ListAlerts returns alerts filtered and paged by query parameters.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	items, total, err := h.repo.ListAlerts(r.Context(), f)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	if items == nil {
		items = []*domain.Alert{}
	}
	writePage(w, items, total, f.Page, f.PageSize)
}

// GetAlert retrieves an alert by ID.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	al, err := h.repo.GetAlert(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get alert", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load alert",
		})
		return
	}

	writeJSON(w, http.StatusOK, al)
}

// reviewRequest is the body for alert workflow transitions.
type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes,omitempty"`
}

// AcknowledgeAlert moves a pending alert into review.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, domain.AlertAcknowledged)
}

// ResolveAlert closes an alert as reviewed fraud.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, domain.AlertResolved)
}

// DismissAlert closes an alert as a false positive.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, domain.AlertDismissed)
}

func (h *Handler) transitionAlert(w http.ResponseWriter, r *http.Request, next domain.AlertStatus) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Reviewer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reviewer is required",
		})
		return
	}

	al, err := h.repo.GetAlert(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get alert", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load alert",
		})
		return
	}

	if err := al.Transition(next, req.Reviewer, req.Notes); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.UpdateAlert(ctx, al); err != nil {
		slog.Error("failed to update alert", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update alert",
		})
		return
	}

	slog.Info("alert status updated", "id", id, "status", al.Status, "reviewer", req.Reviewer)
	writeJSON(w, http.StatusOK, al)
}

// Dashboard returns aggregate fraud statistics for a period.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	period, err := domain.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	stats, err := h.repo.GetDashboardStats(r.Context(), period)
	if err != nil {
		slog.Error("failed to compute dashboard stats", "period", period, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute dashboard stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// RiskDistribution returns assessment counts per risk level for a period.
func (h *Handler) RiskDistribution(w http.ResponseWriter, r *http.Request) {
	period, err := domain.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	dist, err := h.repo.GetRiskDistribution(r.Context(), period)
	if err != nil {
		slog.Error("failed to compute risk distribution", "period", period, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute risk distribution",
		})
		return
	}

	writeJSON(w, http.StatusOK, dist)
}

// Trends returns daily transaction and fraud counts for the last N days.
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	days := 7
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 90 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid days %q, want 1-90", s),
			})
			return
		}
		days = n
	}

	trends, err := h.repo.GetTrends(r.Context(), days)
	if err != nil {
		slog.Error("failed to compute trends", "days", days, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute trends",
		})
		return
	}

	writeJSON(w, http.StatusOK, trends)
}

// ListRules returns all rules from the store, including disabled ones.
// The loaded count reports how many are active in the engine right now.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	dbRules, err := h.repo.ListRules(r.Context(), false)
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  dbRules,
		"count":  len(dbRules),
		"loaded": h.engine.RulesCount(),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	rule, err := h.repo.GetRule(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get rule", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// RuleRequest is the request body for creating or updating a rule.
type RuleRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Expression     string          `json:"expression"`
	Forces         bool            `json:"forces"`
	ForcedDecision domain.Decision `json:"forced_decision,omitempty"`
	Enabled        bool            `json:"enabled"`
}

// CreateRule validates a rule, persists it, and loads it into the engine
// when enabled.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.Rule{
		ID:             req.ID,
		Name:           req.Name,
		Description:    req.Description,
		Expression:     req.Expression,
		Forces:         req.Forces,
		ForcedDecision: req.ForcedDecision,
		Enabled:        req.Enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Compiles the CEL expression, so bad rules never reach the store.
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			slog.Error("failed to load rule into engine", "id", rule.ID, "error", err)
		}
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created and loaded into the engine.",
	})
}

// UpdateRule replaces an existing rule and re-syncs the engine, so disabling
// a rule takes effect immediately.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	existing, err := h.repo.GetRule(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get rule", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule",
		})
		return
	}

	// The path parameter wins over any id in the body.
	rule := &domain.Rule{
		ID:             id,
		Name:           req.Name,
		Description:    req.Description,
		Expression:     req.Expression,
		Forces:         req.Forces,
		ForcedDecision: req.ForcedDecision,
		Enabled:        req.Enabled,
		CreatedAt:      existing.CreatedAt,
		UpdatedAt:      time.Now().UTC(),
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, rule); err != nil {
		slog.Error("failed to save rule", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if err := h.syncEngine(ctx); err != nil {
		slog.Error("failed to reload rules after update", "id", id, "error", err)
	}

	slog.Info("rule updated", "id", id, "enabled", rule.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{
		"rule":    rule,
		"message": "Rule updated and engine reloaded.",
	})
}

// DeleteRule removes a rule from the store and re-syncs the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	err := h.repo.DeleteRule(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to delete rule", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	if err := h.syncEngine(ctx); err != nil {
		slog.Error("failed to reload rules after delete", "id", id, "error", err)
	}

	slog.Info("rule deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all enabled rules from the store into the engine.
// This enables hot-reloading without a server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRules(ctx, true)
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from the store",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func (h *Handler) syncEngine(ctx context.Context) error {
	enabled, err := h.repo.ListRules(ctx, true)
	if err != nil {
		return err
	}
	return h.engine.ReloadRules(enabled)
}

// ListModels returns the ensemble roster with per-model weights and versions.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models := h.scorer.Models()

	writeJSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"count":   len(models),
		"version": h.scorer.Version(),
	})
}

// ReloadModels re-reads the model artifact file and swaps the registry.
// The current roster stays active if the reload fails.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(); err != nil {
		slog.Error("failed to reload model artifacts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload models: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "models reloaded successfully",
		"version": h.registry.Version(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if err := h.repo.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	if err := h.cache.Ping(r.Context()); err != nil {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server can take traffic. The repository is
// required; everything else degrades gracefully.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "repository unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func parseAssessmentFilter(q url.Values) (domain.AssessmentFilter, error) {
	f := domain.AssessmentFilter{
		RiskLevel: domain.RiskLevel(strings.ToUpper(q.Get("risk_level"))),
		Decision:  domain.Decision(strings.ToUpper(q.Get("decision"))),
		Search:    q.Get("search"),
	}

	var err error
	if f.MinAmount, err = floatParam(q, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = floatParam(q, "max_amount"); err != nil {
		return f, err
	}
	if f.StartDate, err = timeParam(q, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = timeParam(q, "end_date"); err != nil {
		return f, err
	}
	f.Page, f.PageSize, err = pageParams(q)
	return f, err
}

func parseAlertFilter(q url.Values) (domain.AlertFilter, error) {
	f := domain.AlertFilter{
		Status:    domain.AlertStatus(strings.ToUpper(q.Get("status"))),
		RiskLevel: domain.RiskLevel(strings.ToUpper(q.Get("risk_level"))),
	}

	var err error
	if f.StartDate, err = timeParam(q, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = timeParam(q, "end_date"); err != nil {
		return f, err
	}
	f.Page, f.PageSize, err = pageParams(q)
	return f, err
}

// pageParams normalizes paging the same way the repository does, so the
// response envelope reports the values actually used.
func pageParams(q url.Values) (int, int, error) {
	page := 1
	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid page %q", s)
		}
		page = n
	}

	size := 20
	if s := q.Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid page_size %q", s)
		}
		size = n
	}
	if size > 100 {
		size = 100
	}

	return page, size, nil
}

func floatParam(q url.Values, key string) (*float64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, s)
	}
	return &v, nil
}

func timeParam(q url.Values, key string) (*time.Time, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q, want RFC 3339 or YYYY-MM-DD", key, s)
	}
	return &t, nil
}

func writePage(w http.ResponseWriter, items any, total, page, size int) {
	totalPages := 0
	if total > 0 {
		totalPages = (total + size - 1) / size
	}
	writeJSON(w, http.StatusOK, PagedResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
