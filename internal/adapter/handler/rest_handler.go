package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/adapter/exporter"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/services"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

// Services bundles the application services exposed over REST and gRPC.
type Services struct {
	Risk       *services.RiskService
	Templates  *services.TemplateService
	Market     *services.MarketService
	Workspaces *services.WorkspaceService
	Funds      *services.FundService
}

type RestHandler struct {
	svc     Services
	timeout time.Duration
	now     func() time.Time
}

func NewRestHandler(svc Services, timeout time.Duration) *RestHandler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &RestHandler{svc: svc, timeout: timeout, now: time.Now}
}

// Register mounts every API route under /api/v1.
func (h *RestHandler) Register(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api.HandleFunc("/templates", h.ListTemplates).Methods(http.MethodGet)
	api.HandleFunc("/templates", h.CreateTemplate).Methods(http.MethodPost)
	api.HandleFunc("/templates/recommend", h.RecommendTemplates).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}", h.GetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/score", h.ScoreTemplate).Methods(http.MethodPost)

	api.HandleFunc("/assessments", h.Assess).Methods(http.MethodPost)
	api.HandleFunc("/assessments/export", h.ExportAssessments).Methods(http.MethodGet)
	api.HandleFunc("/assessments/{entityID}/history", h.AssessmentHistory).Methods(http.MethodGet)

	api.HandleFunc("/market/snapshot", h.MarketSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}/seed", h.SeedWorkspace).Methods(http.MethodPost)
	api.HandleFunc("/funds/analytics", h.FundAnalytics).Methods(http.MethodPost)
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"service":   "vantage-api",
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *RestHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.svc.Templates.List(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": list,
		"count":     len(list),
	})
}

func (h *RestHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if !decodeBody(w, r, &t) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	created, err := h.svc.Templates.Create(ctx, t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RestHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	t, err := h.svc.Templates.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RestHandler) RecommendTemplates(w http.ResponseWriter, r *http.Request) {
	var req services.RecommendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	recs, err := h.svc.Templates.Recommend(ctx, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// ScoreRequest carries the per-criterion scores (0-100) of an opportunity.
type ScoreRequest struct {
	Scores map[string]float64 `json:"scores"`
}

func (h *RestHandler) ScoreTemplate(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.svc.Templates.Score(ctx, mux.Vars(r)["id"], req.Scores)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RestHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req services.AssessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	comp, err := h.svc.Risk.Assess(ctx, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *RestHandler) AssessmentHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	entityID := mux.Vars(r)["entityID"]
	list, err := h.svc.Risk.History(ctx, entityID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity_id":   entityID,
		"assessments": list,
		"count":       len(list),
	})
}

// ExportAssessments streams recent assessments as csv or xlsx.
// Query: format=csv|xlsx (default csv), since=<duration> (default 24h).
func (h *RestHandler) ExportAssessments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	since := h.now().Add(-exporter.DefaultWindow)
	if raw := query.Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid 'since' duration, use values like 24h or 30m")
			return
		}
		since = h.now().Add(-d)
	}

	exp, err := exporter.New(query.Get("format"), h.svc.Risk, h.now)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// Buffer so a failed export still gets a proper error status.
	var buf bytes.Buffer
	n, err := exp.Export(ctx, &buf, since)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("assessments-%s.%s", h.now().UTC().Format("20060102-150405"), exp.Extension())
	w.Header().Set("Content-Type", exp.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Total-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Error("failed to write export", zap.String("format", exp.Extension()), zap.Error(err))
	}
}

func (h *RestHandler) MarketSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.svc.Market.Snapshot(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SeedRequest optionally names a workspace being seeded.
type SeedRequest struct {
	Name string `json:"name"`
}

func (h *RestHandler) SeedWorkspace(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	// The body is optional for seeding.
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.svc.Workspaces.Seed(ctx, mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.WorkspaceCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *RestHandler) FundAnalytics(w http.ResponseWriter, r *http.Request) {
	var snap domain.FundSnapshot
	if !decodeBody(w, r, &snap) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.svc.Funds.Analyze(ctx, snap)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			msg = fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			msg = fmt.Sprintf("invalid value for field %q", typeErr.Field)
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			msg = strings.TrimPrefix(err.Error(), "json: ")
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// writeServiceError maps service errors onto status codes. Internal details
// are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, context.DeadlineExceeded):
		zap.L().Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
