package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hive-corporation/vantage/internal/adapter/repository"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
	"github.com/hive-corporation/vantage/internal/core/services"
)

const testToken = "s3cret"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newServices(t *testing.T, templates ports.TemplateRepository) Services {
	t.Helper()
	repo := repository.NewMemoryRepository()
	if templates == nil {
		templates = repo
	}
	defaults, err := services.DefaultTemplates()
	require.NoError(t, err)

	risk := services.NewRiskService(repo, nil, domain.AlertHigh, nil)
	return Services{
		Risk:       risk,
		Templates:  services.NewTemplateService(templates, 3, nil),
		Market:     services.NewMarketService(repo, 0, nil),
		Workspaces: services.NewWorkspaceService(repo, templates, defaults, nil),
		Funds:      services.NewFundService(risk),
	}
}

func newTestRouter(t *testing.T, svc Services, token string) http.Handler {
	t.Helper()
	return NewRouter(NewRestHandler(svc, 5*time.Second), config.ServerConfig{AuthToken: token})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, w, &body)
	return body["error"]
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "vantage-api", body["service"])
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"no scheme", testToken, http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	t.Run("metrics protected", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware_DisabledWithoutToken(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	router := mux.NewRouter()
	NewRestHandler(newServices(t, nil), time.Second).Register(router)
	router.Use(RateLimitMiddleware(rate.NewLimiter(rate.Every(time.Hour), 1)))

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/templates", "").Code)
	w := do(t, router, http.MethodGet, "/api/v1/templates", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Health stays reachable.
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/health", "").Code)
}

func TestSeedWorkspace(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	w := do(t, h, http.MethodPost, "/api/v1/workspaces/ws-1/seed", `{"name": "Acme Capital"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first domain.SeedResult
	decode(t, w, &first)
	assert.Equal(t, "Acme Capital", first.Workspace.Name)
	assert.Len(t, first.TemplatesCreated, 5)
	assert.Len(t, first.IntegrationsCreated, len(domain.DefaultIntegrations))

	w = do(t, h, http.MethodPost, "/api/v1/workspaces/ws-1/seed", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second domain.SeedResult
	decode(t, w, &second)
	assert.False(t, second.WorkspaceCreated)
	assert.Empty(t, second.TemplatesCreated)
	assert.Empty(t, second.IntegrationsCreated)
}

func TestTemplates_ListGetCreate(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/workspaces/ws-1/seed", "").Code)

	w := do(t, h, http.MethodGet, "/api/v1/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Templates []domain.Template `json:"templates"`
		Count     int               `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 5, list.Count)

	w = do(t, h, http.MethodGet, "/api/v1/templates/tpl-fund-commitment", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tpl domain.Template
	decode(t, w, &tpl)
	assert.Equal(t, "LP Fund Commitment", tpl.Name)

	w = do(t, h, http.MethodGet, "/api/v1/templates/tpl-missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "resource not found", errorMessage(t, w))

	w = do(t, h, http.MethodPost, "/api/v1/templates", `{
		"name": "Credit Screen",
		"asset_types": ["deal"],
		"criteria": [{"name": "coverage", "weight": 0.6}, {"name": "collateral", "weight": 0.4}],
		"passing_score": 60
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.Template
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.AutomationAssisted, created.AutomationLevel)
}

func TestCreateTemplate_DuplicateID(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)
	body := `{
		"id": "tpl-credit",
		"name": "Credit Screen",
		"asset_types": ["deal"],
		"criteria": [{"name": "coverage", "weight": 1}]
	}`

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/templates", body).Code)
	w := do(t, h, http.MethodPost, "/api/v1/templates", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "resource already exists", errorMessage(t, w))

	// Seeded defaults occupy their IDs too.
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/workspaces/ws-1/seed", "").Code)
	w = do(t, h, http.MethodPost, "/api/v1/templates", `{
		"id": "tpl-buyout-core",
		"name": "My Buyout",
		"asset_types": ["deal"],
		"criteria": [{"name": "ebitda", "weight": 1}]
	}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateTemplate_Rejected(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "weights do not sum to one",
			body:    `{"name": "Bad", "asset_types": ["deal"], "criteria": [{"name": "a", "weight": 0.5}, {"name": "b", "weight": 0.2}]}`,
			message: "weight",
		},
		{
			name:    "unknown field",
			body:    `{"name": "Bad", "colour": "red"}`,
			message: "unknown field",
		},
		{
			name:    "malformed json",
			body:    `{"name": `,
			message: "invalid JSON",
		},
		{
			name:    "wrong type",
			body:    `{"name": 42}`,
			message: "name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/templates", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, errorMessage(t, w), tt.message)
		})
	}
}

func TestRecommendTemplates(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/workspaces/ws-1/seed", "").Code)

	w := do(t, h, http.MethodPost, "/api/v1/templates/recommend", `{"opportunity": {"asset_type": "fund"}, "mode": "autonomous"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Recommendations []domain.TemplateRecommendation `json:"recommendations"`
		Count           int                             `json:"count"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Recommendations)
	assert.LessOrEqual(t, resp.Count, 3)
	assert.Equal(t, "tpl-fund-commitment", resp.Recommendations[0].Template.ID)
	for i, rec := range resp.Recommendations {
		assert.NotEqual(t, domain.AutomationNone, rec.Template.AutomationLevel)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Recommendations[i-1].Score, rec.Score)
		}
	}

	w = do(t, h, http.MethodPost, "/api/v1/templates/recommend", `{"opportunity": {}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreTemplate(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/workspaces/ws-1/seed", "").Code)

	w := do(t, h, http.MethodPost, "/api/v1/templates/tpl-venture-seed/score",
		`{"scores": {"founding_team": 90, "market_size": 70, "product_traction": 40}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res domain.ScreeningResult
	decode(t, w, &res)
	assert.Equal(t, "tpl-venture-seed", res.TemplateID)
	assert.Len(t, res.Criteria, 3)
	assert.Empty(t, res.Missing)

	w = do(t, h, http.MethodPost, "/api/v1/templates/nope/score", `{"scores": {}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssessAndHistory(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	body := `{
		"entity_id": "deal-42",
		"entity_type": "deal",
		"inputs": [
			{"domain": "legal", "legal": {"sanctions_exposure": true, "pending_litigation": 3}},
			{"domain": "portfolio", "portfolio": {"net_leverage": 8.5}}
		]
	}`
	w := do(t, h, http.MethodPost, "/api/v1/assessments", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var comp domain.ComprehensiveAssessment
	decode(t, w, &comp)
	assert.Equal(t, "deal-42", comp.Overall.EntityID)
	assert.NotEmpty(t, comp.Overall.ID)
	assert.Contains(t, comp.Modules, "legal")
	assert.Contains(t, comp.Modules, "portfolio")
	assert.NotEmpty(t, comp.Overall.RiskGrade)

	w = do(t, h, http.MethodGet, "/api/v1/assessments/deal-42/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Assessments []domain.RiskAssessment `json:"assessments"`
		Count       int                     `json:"count"`
	}
	decode(t, w, &hist)
	assert.Equal(t, 1, hist.Count)
	assert.Equal(t, comp.Overall.ID, hist.Assessments[0].ID)

	w = do(t, h, http.MethodGet, "/api/v1/assessments/deal-42/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssess_ValidationErrors(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing entity", `{"entity_type": "deal", "inputs": [{"domain": "legal"}]}`, "entityid"},
		{"bad entity type", `{"entity_id": "x", "entity_type": "car", "inputs": [{"domain": "legal"}]}`, "entitytype"},
		{"no inputs", `{"entity_id": "x", "entity_type": "deal", "inputs": []}`, "inputs"},
		{"unknown domain", `{"entity_id": "x", "entity_type": "deal", "inputs": [{"domain": "weather"}]}`, "inputs[0].domain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/assessments", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, errorMessage(t, w), tt.message)
		})
	}
}

func TestExportAssessments(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	for _, id := range []string{"deal-1", "deal-2"} {
		body := `{"entity_id": "` + id + `", "entity_type": "deal", "inputs": [{"domain": "legal", "legal": {"pending_litigation": 2}}]}`
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/assessments", body).Code)
	}

	w := do(t, h, http.MethodGet, "/api/v1/assessments/export?format=csv&since=1h", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])

	w = do(t, h, http.MethodGet, "/api/v1/assessments/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, w.Body.Len())

	w = do(t, h, http.MethodGet, "/api/v1/assessments/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/assessments/export?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "since")
}

func TestMarketSnapshot_Empty(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	w := do(t, h, http.MethodGet, "/api/v1/market/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.MarketSnapshot
	decode(t, w, &snap)
	assert.Zero(t, snap.Indicators)
	assert.Empty(t, snap.Sectors)
}

func TestMarketSnapshot_WithIndicators(t *testing.T) {
	svc := newServices(t, nil)
	now := time.Now().UTC()
	require.NoError(t, svc.Market.Record(context.Background(), []domain.MarketIndicator{
		{Sector: "software", Region: "us", Metric: "deal_volume", Value: 120, PreviousValue: 100, AsOf: now.Add(-time.Hour), Source: "test"},
	}))
	h := newTestRouter(t, svc, testToken)

	w := do(t, h, http.MethodGet, "/api/v1/market/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.MarketSnapshot
	decode(t, w, &snap)
	assert.Equal(t, []string{"software"}, snap.TopSectors)
	require.Len(t, snap.Sectors, 1)
	assert.Equal(t, domain.SentimentBullish, snap.Sectors[0].Sentiment)
}

func TestFundAnalytics(t *testing.T) {
	h := newTestRouter(t, newServices(t, nil), testToken)

	body := `{
		"fund_id": "fund-7",
		"vintage_date": "2020-01-01T00:00:00Z",
		"commitment": 100,
		"nav": 110,
		"valuation_date": "2021-01-01T00:00:00Z",
		"cash_flows": [{"date": "2020-01-01T00:00:00Z", "amount": 100, "kind": "contribution"}]
	}`
	w := do(t, h, http.MethodPost, "/api/v1/funds/analytics", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res services.FundAnalysis
	decode(t, w, &res)
	assert.InDelta(t, 1.1, res.Performance.TVPI, 1e-9)
	assert.True(t, res.Performance.IRRDefined)
	assert.InDelta(t, 0.10, res.Performance.IRR, 0.005)
	require.NotNil(t, res.Assessment)
	assert.Equal(t, domain.EntityFund, res.Assessment.Overall.EntityType)

	w = do(t, h, http.MethodPost, "/api/v1/funds/analytics", `{"commitment": 100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenTemplates struct {
	ports.TemplateRepository
}

func (brokenTemplates) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return nil, errors.New("connection reset by peer: 10.0.0.5:5432")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := newTestRouter(t, newServices(t, brokenTemplates{}), testToken)

	w := do(t, h, http.MethodGet, "/api/v1/templates", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	msg := errorMessage(t, w)
	assert.Equal(t, "internal server error", msg)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}
