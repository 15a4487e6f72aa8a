package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"referralnet-backend/application/commands"
	"referralnet-backend/application/commands/bus"
	"referralnet-backend/application/queries"
	querybus "referralnet-backend/application/queries/bus"
	"referralnet-backend/application/services"
	"referralnet-backend/domain/network"
	"referralnet-backend/infrastructure/persistence/memory"
	"referralnet-backend/pkg/auth"
	apperrors "referralnet-backend/pkg/errors"
	"referralnet-backend/pkg/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func ptr(s string) *string { return &s }

type testServer struct {
	handler   http.Handler
	store     *memory.Store
	collector *observability.Collector
}

func newTestServer(t *testing.T, ready func(context.Context) error) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.Seed([]network.AgentRecord{
		{ID: "root", DisplayName: "Root", Role: network.RoleTeamLead, Region: "EU", IsActive: true, CanRecruit: true},
		{ID: "mid", DisplayName: "Mid", Role: network.RoleAgent, Region: "EU", IsActive: true, CanRecruit: true, ParentID: ptr("root")},
		{ID: "leaf", DisplayName: "Leaf", Role: network.RoleAgent, Region: "EU", IsActive: true, ParentID: ptr("mid")},
		{ID: "lost", DisplayName: "Lost", Role: network.RoleAgent, Region: "US", IsActive: true, ParentID: ptr("gone")},
	}, []network.Lead{
		{ID: "l-1", Region: "EU"},
		{ID: "l-2", Region: "EU"},
	})

	logger := zap.NewNop()
	networkService := services.NewNetworkService(store, store, nil, nil, nil, nil, nil, logger)
	leadService := services.NewLeadService(store, store, networkService, nil, nil, nil, logger)

	commandBus := bus.NewCommandBus()
	require.NoError(t, commands.Register(commandBus, networkService, leadService, logger))
	queryBus := querybus.NewQueryBus()
	require.NoError(t, queries.Register(queryBus, networkService, leadService))

	validator, err := auth.NewJWTValidator(auth.JWTConfig{SigningMethod: "HS256", SecretKey: testSecret, Issuer: "referralnet"})
	require.NoError(t, err)
	collector := observability.NewCollector("test")

	handler := NewRouter(RouterConfig{
		CommandBus:     commandBus,
		QueryBus:       queryBus,
		Validator:      validator,
		ErrorHandler:   apperrors.NewErrorHandler(logger, false),
		Metrics:        collector,
		Ready:          ready,
		AllowedOrigins: []string{"*"},
		EnableCORS:     true,
		EnableMetrics:  true,
		Logger:         logger,
	}).Setup()

	return &testServer{handler: handler, store: store, collector: collector}
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	claims := auth.Claims{UserID: "user-1", Roles: roles}
	claims.Issuer = "referralnet"
	signed, err := auth.SignHS256(testSecret, claims, time.Hour)
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", nil).Code)

	down := newTestServer(t, func(context.Context) error {
		return apperrors.NewUnavailableError("store").WithCode("CIRCUIT_OPEN")
	})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/ready", "", nil).Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/network/forest", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/network/forest", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetForest(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/network/forest", token(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var forest struct {
		Roots []struct {
			ID                 string `json:"id"`
			TotalDownlineCount int    `json:"totalDownlineCount"`
			IsOrphan           bool   `json:"isOrphan"`
			Children           []struct {
				ID string `json:"id"`
			} `json:"children"`
		} `json:"roots"`
		AllNodes map[string]struct {
			ChildIDs []string `json:"childIds"`
		} `json:"allNodes"`
		Stats network.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &forest))

	require.Len(t, forest.Roots, 2)
	assert.Equal(t, "lost", forest.Roots[0].ID)
	assert.True(t, forest.Roots[0].IsOrphan)
	assert.Equal(t, "root", forest.Roots[1].ID)
	assert.Equal(t, 2, forest.Roots[1].TotalDownlineCount)
	require.Len(t, forest.Roots[1].Children, 1)
	assert.Equal(t, "mid", forest.Roots[1].Children[0].ID)

	assert.Len(t, forest.AllNodes, 4)
	assert.Equal(t, []string{"leaf"}, forest.AllNodes["mid"].ChildIDs)
	assert.Equal(t, 1, forest.Stats.OrphanCount)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		s.collector.HTTPRequests.WithLabelValues("GET", "/api/v1/network/forest", "200")))
}

func TestGetIntegrityAndUpline(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/network/integrity", token(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report services.IntegrityReport
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &report))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "lost", report.Issues[0].NodeID)

	rec = s.do(t, http.MethodGet, "/api/v1/agents/leaf/upline", token(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var upline network.Upline
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &upline))
	assert.Equal(t, []string{"mid", "root"}, upline.Ancestors)
	assert.Equal(t, network.StopAtRoot, upline.StopReason)
}

func TestMutationsRequireAdmin(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/network/repairs/orphans", token(t, "agent"), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	agent, err := s.store.GetAgent(context.Background(), "lost")
	require.NoError(t, err)
	assert.Equal(t, "gone", agent.ParentKey())
}

func TestReparentAgent(t *testing.T) {
	admin := token(t, auth.RoleAdmin)

	t.Run("moves agent", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := s.do(t, http.MethodPut, "/api/v1/network/agents/lost/parent", admin, map[string]interface{}{"parentId": "mid"})

		require.Equal(t, http.StatusOK, rec.Code)
		agent, err := s.store.GetAgent(context.Background(), "lost")
		require.NoError(t, err)
		assert.Equal(t, "mid", agent.ParentKey())
	})

	t.Run("rejects cycle", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := s.do(t, http.MethodPut, "/api/v1/network/agents/root/parent", admin, map[string]interface{}{"parentId": "mid"})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "WOULD_CREATE_CYCLE", decodeEnvelope(t, rec).Error.Code)
	})

	t.Run("unknown agent", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := s.do(t, http.MethodPut, "/api/v1/network/agents/ghost/parent", admin, map[string]interface{}{"parentId": nil})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := s.do(t, http.MethodPut, "/api/v1/network/agents/lost/parent", admin, map[string]interface{}{"parent": "mid"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRepairs(t *testing.T) {
	s := newTestServer(t, nil)
	admin := token(t, auth.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/v1/network/repairs/orphans", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Requested int `json:"requested"`
		Changed   int `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, 1, result.Requested)
	assert.Equal(t, 1, result.Changed)

	rec = s.do(t, http.MethodPost, "/api/v1/network/repairs/orphans", admin, map[string]bool{"includeSelfLoops": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, 0, result.Changed)

	rec = s.do(t, http.MethodPost, "/api/v1/network/repairs/normalize-parents", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLeadEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	admin := token(t, auth.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/v1/leads/l-1/attribution", admin, map[string]string{"agentId": "leaf"})
	require.Equal(t, http.StatusOK, rec.Code)
	lead, err := s.store.GetLead(context.Background(), "l-1")
	require.NoError(t, err)
	assert.Equal(t, "leaf", lead.AssignedTo())
	assert.Equal(t, []string{"leaf", "mid", "root"}, lead.VisibleTo)

	rec = s.do(t, http.MethodPost, "/api/v1/leads/l-1/attribution", admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/leads/assignments", admin, map[string]interface{}{"region": "EU"})
	require.Equal(t, http.StatusOK, rec.Code)
	lead, err = s.store.GetLead(context.Background(), "l-2")
	require.NoError(t, err)
	assert.NotEmpty(t, lead.AssignedTo())
}

func TestReadyHandlesPlainErrors(t *testing.T) {
	s := newTestServer(t, func(context.Context) error { return errors.New("boom") })

	rec := s.do(t, http.MethodGet, "/ready", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
