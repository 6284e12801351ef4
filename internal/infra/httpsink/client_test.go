package httpsink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/telemetry"
)

func TestSendLogs(t *testing.T) {
	var got []domain.LogRecord
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL + "/sink", Token: "secret"})
	require.NoError(t, err)

	recs := []domain.LogRecord{{
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Level:       "error",
		Message:     "Error boundary caught error",
		Category:    "ui",
		Properties:  map[string]any{"component": "Roster"},
		App:         "school-admin",
		Environment: "production",
		Version:     "1.4.0",
	}}
	require.NoError(t, c.SendLogs(context.Background(), recs))

	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, "/sink/api/logs", path)
	require.Len(t, got, 1)
	require.Equal(t, "Roster", got[0].Properties["component"])
	require.Equal(t, 1, c.Health().SuccessCount)
}

func TestSendLogs_Empty(t *testing.T) {
	c, err := New(Config{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.NoError(t, c.SendLogs(context.Background(), nil))
}

func TestSendEvent(t *testing.T) {
	var got telemetry.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EventsPath, r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ev := telemetry.Event{ID: "evt-1", Kind: telemetry.KindException, Level: telemetry.LevelFatal, Message: "boom"}
	require.NoError(t, c.SendEvent(context.Background(), ev))
	require.Equal(t, "evt-1", got.ID)
	require.Equal(t, telemetry.LevelFatal, got.Level)
}

func TestPost_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "unauthorized", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "30")
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c, err := New(Config{Endpoint: srv.URL})
			require.NoError(t, err)

			err = c.SendEvent(context.Background(), telemetry.Event{ID: "x"})
			require.Error(t, err)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
			}
			require.Equal(t, 1, c.Health().FailureCount)
			require.NotEmpty(t, c.Health().LastError)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Endpoint: "ftp://sink"})
	require.Error(t, err)
}
