package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"referralnet-backend/pkg/auth"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedRequest struct {
	method, route, status string
}

type fakeObserver struct {
	requests []recordedRequest
}

func (f *fakeObserver) ObserveHTTP(method, route, status string, duration time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, route, status})
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(Metrics(obs))
	r.Get("/agents/{agentID}/upline", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	for _, path := range []string{"/agents/a-1/upline", "/agents/a-2/upline", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.requests, 3)
	assert.Equal(t, recordedRequest{"GET", "/agents/{agentID}/upline", "200"}, obs.requests[0])
	assert.Equal(t, recordedRequest{"GET", "/agents/{agentID}/upline", "200"}, obs.requests[1])
	assert.Equal(t, "404", obs.requests[2].status)
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(Logger(zap.New(core)))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/forest", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/health", "/boom", "/forest", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Equal(t, "/forest", entries[2].ContextMap()["route"])
}

func TestAuthenticate(t *testing.T) {
	validator, err := auth.NewJWTValidator(auth.JWTConfig{SigningMethod: "HS256", SecretKey: "s3cret"})
	require.NoError(t, err)
	var seen string
	handler := Authenticate(validator, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.ActorID(r.Context())
	}))
	token, err := auth.SignHS256("s3cret", auth.Claims{UserID: "u-1"}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"bearer", "Bearer " + token, http.StatusOK},
		{"raw token", token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u-1", seen)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	run := func(claims *auth.Claims) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if claims != nil {
			req = req.WithContext(auth.WithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, run(nil))
	assert.Equal(t, http.StatusForbidden, run(&auth.Claims{UserID: "u", Roles: []string{"agent"}}))
	assert.Equal(t, http.StatusOK, run(&auth.Claims{UserID: "u", Roles: []string{auth.RoleAdmin}}))
}
