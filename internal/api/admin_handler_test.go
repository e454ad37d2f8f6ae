package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxnote/voxnote-api/internal/monitor"
	"github.com/voxnote/voxnote-api/internal/store"
)

type mockResetter struct {
	count     int
	err       error
	gotForce  bool
	callCount int
}

func (m *mockResetter) ResetStuckProcessing(ctx context.Context, force bool) (int, error) {
	m.callCount++
	m.gotForce = force
	return m.count, m.err
}

type mockBreakerAdmin struct {
	resetCalls int
}

func (m *mockBreakerAdmin) Reset(ctx context.Context) {
	m.resetCalls++
}

type mockMonitor struct {
	load     *monitor.SystemLoad
	insights *monitor.PerformanceInsights
	cost     *monitor.CostSummary
	err      error
	gotUser  *uuid.UUID
	gotDays  int
}

func (m *mockMonitor) SystemLoad(ctx context.Context) (*monitor.SystemLoad, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.load != nil {
		return m.load, nil
	}
	return &monitor.SystemLoad{RecentErrors: []store.NoteError{}}, nil
}

func (m *mockMonitor) PerformanceInsights(ctx context.Context, userID *uuid.UUID, days int) (*monitor.PerformanceInsights, error) {
	m.gotUser = userID
	m.gotDays = days
	if m.err != nil {
		return nil, m.err
	}
	if m.insights != nil {
		return m.insights, nil
	}
	return &monitor.PerformanceInsights{Days: days}, nil
}

func (m *mockMonitor) CostSummary(ctx context.Context, userID *uuid.UUID, days int) (*monitor.CostSummary, error) {
	m.gotUser = userID
	m.gotDays = days
	if m.err != nil {
		return nil, m.err
	}
	if m.cost != nil {
		return m.cost, nil
	}
	return &monitor.CostSummary{Days: days}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResetProcessing(t *testing.T) {
	t.Parallel()

	t.Run("normal reset with empty body", func(t *testing.T) {
		t.Parallel()

		resetter := &mockResetter{count: 3}
		h := NewAdminHandler(resetter, &mockBreakerAdmin{}, &mockMonitor{}, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-processing", nil)
		rec := httptest.NewRecorder()
		h.ResetProcessing(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ResetProcessingResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 3, resp.Reset)
		assert.False(t, resp.ForceReset)
		assert.False(t, resetter.gotForce)
	})

	t.Run("force reset", func(t *testing.T) {
		t.Parallel()

		resetter := &mockResetter{count: 7}
		h := NewAdminHandler(resetter, &mockBreakerAdmin{}, &mockMonitor{}, discardLogger())

		body := strings.NewReader(`{"force_reset": true}`)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-processing", body)
		rec := httptest.NewRecorder()
		h.ResetProcessing(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ResetProcessingResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 7, resp.Reset)
		assert.True(t, resp.ForceReset)
		assert.True(t, resetter.gotForce)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		h := NewAdminHandler(&mockResetter{}, &mockBreakerAdmin{}, &mockMonitor{}, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-processing", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		h.ResetProcessing(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		resetter := &mockResetter{err: errors.New("db down")}
		h := NewAdminHandler(resetter, &mockBreakerAdmin{}, &mockMonitor{}, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/admin/reset-processing", nil)
		rec := httptest.NewRecorder()
		h.ResetProcessing(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp errorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.NotContains(t, resp.Error, "db down", "raw error must not leak")
	})
}

// errorBody mirrors the error envelope for assertions.
type errorBody struct {
	Error string `json:"error"`
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	dispatch := func(t *testing.T, h *AdminHandler, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/dispatch", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Dispatch(rec, req)
		return rec
	}

	t.Run("health metrics", func(t *testing.T) {
		t.Parallel()

		mon := &mockMonitor{load: &monitor.SystemLoad{
			ActiveJobs:   2,
			RecentErrors: []store.NoteError{},
			GeneratedAt:  time.Now().UTC(),
		}}
		h := NewAdminHandler(&mockResetter{}, &mockBreakerAdmin{}, mon, discardLogger())

		rec := dispatch(t, h, `{"action": "health_metrics"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp DispatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, ActionHealthMetrics, resp.Action)
		require.NotNil(t, resp.HealthMetrics)
		assert.Equal(t, 2, resp.HealthMetrics.ActiveJobs)
	})

	t.Run("performance insights defaults to seven days", func(t *testing.T) {
		t.Parallel()

		mon := &mockMonitor{}
		h := NewAdminHandler(&mockResetter{}, &mockBreakerAdmin{}, mon, discardLogger())

		rec := dispatch(t, h, `{"action": "performance_insights"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7, mon.gotDays)
		assert.Nil(t, mon.gotUser, "dispatch aggregates are system-wide")
	})

	t.Run("cost summary with explicit days", func(t *testing.T) {
		t.Parallel()

		mon := &mockMonitor{}
		h := NewAdminHandler(&mockResetter{}, &mockBreakerAdmin{}, mon, discardLogger())

		rec := dispatch(t, h, `{"action": "cost_summary", "days": 30}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 30, mon.gotDays)
	})

	t.Run("reset breaker", func(t *testing.T) {
		t.Parallel()

		brk := &mockBreakerAdmin{}
		h := NewAdminHandler(&mockResetter{}, brk, &mockMonitor{}, discardLogger())

		rec := dispatch(t, h, `{"action": "reset_breaker"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, brk.resetCalls)

		var resp DispatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.BreakerReset)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		t.Parallel()

		h := NewAdminHandler(&mockResetter{}, &mockBreakerAdmin{}, &mockMonitor{}, discardLogger())

		rec := dispatch(t, h, `{"action": "drop_tables"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing action rejected", func(t *testing.T) {
		t.Parallel()

		h := NewAdminHandler(&mockResetter{}, &mockBreakerAdmin{}, &mockMonitor{}, discardLogger())

		rec := dispatch(t, h, `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
