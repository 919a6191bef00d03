package reasoner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/internal/adapters/reasoner"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

func task() domain.Task {
	return domain.Task{
		ID:         "task-1",
		Action:     domain.ActionStopLossWarning,
		Urgency:    domain.UrgencyStopLossWarning,
		Context:    map[string]any{"positionId": "pos-1"},
		Dispatched: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestHTTP_DispatchPostsTask(t *testing.T) {
	var got domain.Task
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "task-1", r.Header.Get("X-Task-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := reasoner.NewHTTP(srv.URL, time.Second).Dispatch(context.Background(), task())
	require.NoError(t, err)
	assert.Equal(t, "stop-loss-warning", got.Action)
	assert.Equal(t, 95, got.Urgency)
	assert.Equal(t, "pos-1", got.Context["positionId"])
}

func TestHTTP_DispatchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := reasoner.NewHTTP(srv.URL, time.Second).Dispatch(context.Background(), task())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent returned 503: busy")
}

func TestHTTP_DispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reasoner.NewHTTP("http://127.0.0.1:1", time.Second).Dispatch(ctx, task())
	require.Error(t, err)
}

func TestLog_Dispatch(t *testing.T) {
	assert.NoError(t, reasoner.Log{}.Dispatch(context.Background(), task()))
}
