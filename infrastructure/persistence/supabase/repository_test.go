package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"referralnet-backend/domain/network"
	apperrors "referralnet-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]interface{}
}

// fakePostgREST answers every request with the next canned response and
// records what it was asked
type fakePostgREST struct {
	mu        sync.Mutex
	responses []fakeResponse
	requests  []recordedRequest
}

type fakeResponse struct {
	status int
	body   interface{}
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
	for k, v := range r.URL.Query() {
		req.Query[k] = v[0]
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}
	f.requests = append(f.requests, req)

	resp := fakeResponse{status: http.StatusOK, body: []interface{}{}}
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_ = json.NewEncoder(w).Encode(resp.body)
}

func newFake(t *testing.T, responses ...fakeResponse) (*fakePostgREST, Querier) {
	t.Helper()
	fake := &fakePostgREST{responses: responses}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, postgrest.NewClient(server.URL, "public", nil)
}

func ok(body interface{}) fakeResponse { return fakeResponse{status: http.StatusOK, body: body} }

func TestAgentRepository_ListAgents(t *testing.T) {
	fake, db := newFake(t, ok([]map[string]interface{}{
		{"id": "a-1", "display_name": "Ada", "role": "team_lead", "is_active": true, "parent_id": nil, "can_recruit": true, "created_at": "2024-01-01T00:00:00Z"},
		{"id": "a-2", "display_name": "Bo", "role": "agent", "is_active": true, "parent_id": "a-1", "created_at": "2024-02-01T00:00:00Z"},
	}))
	repo := NewAgentRepository(db, 0, zap.NewNop())

	agents, err := repo.ListAgents(context.Background())

	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Nil(t, agents[0].ParentID)
	assert.Equal(t, network.RoleTeamLead, agents[0].Role)
	assert.Equal(t, "a-1", agents[1].ParentKey())
	assert.Equal(t, "/agents", fake.requests[0].Path)
	assert.Contains(t, fake.requests[0].Query["order"], "created_at.asc")
}

func TestAgentRepository_GetAgentMissing(t *testing.T) {
	fake, db := newFake(t, ok([]interface{}{}))
	repo := NewAgentRepository(db, 0, zap.NewNop())

	_, err := repo.GetAgent(context.Background(), "ghost")

	assert.ErrorIs(t, err, network.ErrAgentNotFound)
	assert.Equal(t, "eq.ghost", fake.requests[0].Query["id"])
}

func TestAgentRepository_UpdateParent(t *testing.T) {
	t.Run("writes parent", func(t *testing.T) {
		fake, db := newFake(t, ok([]map[string]interface{}{{"id": "a-2"}}))
		repo := NewAgentRepository(db, 0, zap.NewNop())
		parent := "a-1"

		require.NoError(t, repo.UpdateParent(context.Background(), "a-2", &parent))

		req := fake.requests[0]
		assert.Equal(t, http.MethodPatch, req.Method)
		assert.Equal(t, "eq.a-2", req.Query["id"])
		assert.Equal(t, "a-1", req.Body["parent_id"])
	})

	t.Run("no row matched", func(t *testing.T) {
		_, db := newFake(t, ok([]interface{}{}))
		repo := NewAgentRepository(db, 0, zap.NewNop())

		err := repo.UpdateParent(context.Background(), "ghost", nil)

		assert.ErrorIs(t, err, network.ErrAgentNotFound)
	})
}

func TestAgentRepository_ClearParentsInBatches(t *testing.T) {
	fake, db := newFake(t,
		ok([]map[string]interface{}{{"id": "o-1"}}),
		ok([]map[string]interface{}{{"id": "o-2"}}),
		fakeResponse{status: http.StatusInternalServerError, body: map[string]string{"code": "XX000", "message": "boom"}},
	)
	repo := NewAgentRepository(db, 2, zap.NewNop())

	result, err := repo.ClearParents(context.Background(), []string{"o-1", "o-2", "o-3"})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "o-3", result.Failures[0].ID)

	require.Len(t, fake.requests, 3)
	assert.Equal(t, `in.("o-1","o-2")`, fake.requests[0].Query["id"])
	assert.Equal(t, "not.is.null", fake.requests[0].Query["parent_id"])
	assert.Contains(t, fake.requests[0].Body, "parent_id")
	assert.Nil(t, fake.requests[0].Body["parent_id"])
	assert.Equal(t, http.MethodGet, fake.requests[1].Method)
	assert.Equal(t, `in.("o-2")`, fake.requests[1].Query["id"])
}

func TestAgentRepository_ClearParentsReportsMissingAgents(t *testing.T) {
	fake, db := newFake(t,
		ok([]map[string]interface{}{{"id": "o-1"}}),
		ok([]map[string]interface{}{{"id": "root-already"}}),
	)
	repo := NewAgentRepository(db, 0, zap.NewNop())

	result, err := repo.ClearParents(context.Background(), []string{"o-1", "root-already", "ghost"})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ghost", result.Failures[0].ID)
	assert.Equal(t, network.ErrAgentNotFound.Error(), result.Failures[0].Reason)
	require.Len(t, fake.requests, 2)
	assert.Equal(t, `in.("root-already","ghost")`, fake.requests[1].Query["id"])
}

func TestAgentRepository_ClearParentsQuotesIDs(t *testing.T) {
	fake, db := newFake(t, ok([]map[string]interface{}{
		{"id": "a,b"}, {"id": `say "hi"`}, {"id": `back\slash`}, {"id": "(x)"},
	}))
	repo := NewAgentRepository(db, 0, zap.NewNop())

	result, err := repo.ClearParents(context.Background(), []string{"a,b", `say "hi"`, `back\slash`, "(x)"})

	require.NoError(t, err)
	assert.Equal(t, 4, result.Changed)
	assert.Empty(t, result.Failures)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, `in.("a,b","say \"hi\"","back\\slash","(x)")`, fake.requests[0].Query["id"])
}

func TestAgentRepository_NormalizeEmptyParents(t *testing.T) {
	fake, db := newFake(t,
		ok([]map[string]interface{}{
			{"id": "a-1", "parent_id": ""},
			{"id": "a-2", "parent_id": "a-1"},
			{"id": "a-3", "parent_id": nil},
		}),
		ok([]map[string]interface{}{{"id": "a-1"}}),
	)
	repo := NewAgentRepository(db, 0, zap.NewNop())

	result, err := repo.NormalizeEmptyParents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Requested)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, fake.requests, 2)
	assert.Equal(t, `in.("a-1")`, fake.requests[1].Query["id"])
	assert.Equal(t, `in.("")`, fake.requests[1].Query["parent_id"])
}

func TestLeadRepository_ListUnassignedLeads(t *testing.T) {
	fake, db := newFake(t, ok([]map[string]interface{}{
		{"id": "l-1", "region": "eu", "assigned_agent_id": nil, "created_at": "2024-01-01T00:00:00Z"},
		{"id": "l-2", "region": "US", "assigned_agent_id": nil, "created_at": "2024-01-02T00:00:00Z"},
		{"id": "l-3", "region": "EU ", "assigned_agent_id": "  ", "created_at": "2024-01-03T00:00:00Z"},
	}))
	repo := NewLeadRepository(db, zap.NewNop())

	leads, err := repo.ListUnassignedLeads(context.Background(), "EU")

	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "l-1", leads[0].ID)
	assert.Equal(t, "l-3", leads[1].ID)
	assert.Contains(t, fake.requests[0].Query["or"], "assigned_agent_id.is.null")
}

func TestLeadRepository_Writes(t *testing.T) {
	t.Run("assign trims owner", func(t *testing.T) {
		fake, db := newFake(t, ok([]map[string]interface{}{{"id": "l-1"}}))
		repo := NewLeadRepository(db, zap.NewNop())

		require.NoError(t, repo.AssignLead(context.Background(), "l-1", " a-1 "))
		assert.Equal(t, "a-1", fake.requests[0].Body["assigned_agent_id"])
	})

	t.Run("visibility list", func(t *testing.T) {
		fake, db := newFake(t, ok([]map[string]interface{}{{"id": "l-1"}}))
		repo := NewLeadRepository(db, zap.NewNop())

		require.NoError(t, repo.SetLeadVisibility(context.Background(), "l-1", []string{"a-1", "a-0"}))
		assert.Equal(t, []interface{}{"a-1", "a-0"}, fake.requests[0].Body["visible_to"])
	})

	t.Run("missing lead", func(t *testing.T) {
		_, db := newFake(t, ok([]interface{}{}))
		repo := NewLeadRepository(db, zap.NewNop())

		err := repo.AssignLead(context.Background(), "ghost", "a-1")

		assert.ErrorIs(t, err, network.ErrLeadNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		_, db := newFake(t, fakeResponse{status: http.StatusBadRequest, body: map[string]string{"code": "22P02", "message": "bad input"}})
		repo := NewLeadRepository(db, zap.NewNop())

		err := repo.AssignLead(context.Background(), "l-1", "a-1")

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDatabase))
	})
}

func TestLeadRepository_AssignUnassignedLead(t *testing.T) {
	ctx := context.Background()

	t.Run("filters on no owner", func(t *testing.T) {
		fake, db := newFake(t, ok([]map[string]interface{}{{"id": "l-1"}}))
		repo := NewLeadRepository(db, zap.NewNop())

		require.NoError(t, repo.AssignUnassignedLead(ctx, "l-1", " a-2 "))

		require.Len(t, fake.requests, 1)
		req := fake.requests[0]
		assert.Equal(t, http.MethodPatch, req.Method)
		assert.Equal(t, "eq.l-1", req.Query["id"])
		assert.Equal(t, `(assigned_agent_id.is.null,assigned_agent_id.eq."")`, req.Query["or"])
		assert.Equal(t, "a-2", req.Body["assigned_agent_id"])
	})

	t.Run("owned since read", func(t *testing.T) {
		fake, db := newFake(t,
			ok([]interface{}{}),
			ok([]map[string]interface{}{{"id": "l-1", "assigned_agent_id": "a-1", "created_at": "2024-01-01T00:00:00Z"}}),
		)
		repo := NewLeadRepository(db, zap.NewNop())

		err := repo.AssignUnassignedLead(ctx, "l-1", "a-2")

		assert.ErrorIs(t, err, network.ErrLeadAlreadyAssigned)
		require.Len(t, fake.requests, 2)
		assert.Equal(t, http.MethodGet, fake.requests[1].Method)
	})

	t.Run("whitespace owner is replaced", func(t *testing.T) {
		fake, db := newFake(t,
			ok([]interface{}{}),
			ok([]map[string]interface{}{{"id": "l-1", "assigned_agent_id": "  ", "created_at": "2024-01-01T00:00:00Z"}}),
			ok([]map[string]interface{}{{"id": "l-1"}}),
		)
		repo := NewLeadRepository(db, zap.NewNop())

		require.NoError(t, repo.AssignUnassignedLead(ctx, "l-1", "a-2"))

		require.Len(t, fake.requests, 3)
		assert.Equal(t, "eq.  ", fake.requests[2].Query["assigned_agent_id"])
	})

	t.Run("missing lead", func(t *testing.T) {
		_, db := newFake(t, ok([]interface{}{}), ok([]interface{}{}))
		repo := NewLeadRepository(db, zap.NewNop())

		err := repo.AssignUnassignedLead(ctx, "ghost", "a-2")

		assert.ErrorIs(t, err, network.ErrLeadNotFound)
	})
}
