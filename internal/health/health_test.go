package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChecker struct {
	name     string
	critical bool
	result   Result
	calls    int
}

func (s *stubChecker) Name() string           { return s.name }
func (s *stubChecker) Critical() bool         { return s.critical }
func (s *stubChecker) Timeout() time.Duration { return time.Second }
func (s *stubChecker) Check(context.Context) Result {
	s.calls++
	return s.result
}

func TestManagerAggregatesCriticalFailure(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "postgres", critical: true, result: Result{Status: StatusUnhealthy}})
	m.Register(&stubChecker{name: "redis", result: Result{Status: StatusHealthy}})

	ov := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, ov.Status)
	assert.False(t, ov.Ready)
	assert.Equal(t, StatusUnhealthy, ov.Components["postgres"].Status)
	assert.True(t, ov.Components["postgres"].Critical)
}

func TestManagerNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "qdrant", result: Result{Status: StatusUnhealthy}})
	m.Register(&stubChecker{name: "elasticsearch", result: Result{Status: StatusHealthy}})

	ov := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, ov.Status)
	assert.True(t, ov.Ready)
}

func TestManagerAllHealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "postgres", critical: true, result: Result{Status: StatusHealthy}})

	ov := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, ov.Status)
	assert.True(t, ov.Ready)
	assert.Equal(t, "all 1 components healthy", ov.Message)
}

func TestManagerNoCheckersIsUnknown(t *testing.T) {
	m := NewManager(zap.NewNop())
	ov := m.Check(context.Background())
	assert.Equal(t, StatusUnknown, ov.Status)
	assert.False(t, ov.Ready)
}

func TestManagerCachedSkipsProbes(t *testing.T) {
	stub := &stubChecker{name: "redis", result: Result{Status: StatusHealthy}}
	m := NewManager(zap.NewNop())
	m.Register(stub)

	m.Check(context.Background())
	require.Equal(t, 1, stub.calls)

	ov := m.Cached()
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, StatusHealthy, ov.Status)
}

func TestHealthzEndpoint(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "postgres", critical: true, result: Result{Status: StatusHealthy}})
	m.Register(&stubChecker{name: "qdrant", result: Result{Status: StatusUnhealthy}})

	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		Ready      bool              `json:"ready"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.True(t, body.Ready)
	assert.Equal(t, "healthy", body.Components["postgres"])
	assert.Equal(t, "unhealthy", body.Components["qdrant"])
}

func TestHealthzCriticalFailureIs503(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "postgres", critical: true, result: Result{Status: StatusUnhealthy}})

	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzRejectsPost(t *testing.T) {
	m := NewManager(zap.NewNop())
	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDetailedCachedParameter(t *testing.T) {
	stub := &stubChecker{name: "redis", result: Result{Status: StatusHealthy}}
	m := NewManager(zap.NewNop())
	m.Register(stub)
	m.Check(context.Background())
	require.Equal(t, 1, stub.calls)

	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed?cached=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.calls)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, stub.calls)
}
