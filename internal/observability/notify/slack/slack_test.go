package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestSendJobFailurePosts(t *testing.T) {
	t.Parallel()

	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, Channel: "#downloads"})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:      "7f1c",
		JobType:    "playlist",
		Error:      "exit status 1 <stderr>",
		ErrorClass: "subprocess",
		Attempts:   3,
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal([]byte(body.Load().(string)), &msg))

	assert.Equal(t, "clipforge", msg["username"])
	assert.Equal(t, "#downloads", msg["channel"])

	text, _ := msg["text"].(string)
	assert.Contains(t, text, "`7f1c`")
	assert.Contains(t, text, "(playlist)")
	assert.Contains(t, text, "Attempts: 3")
	assert.Contains(t, text, "Error class: subprocess")
	assert.Contains(t, text, "&lt;stderr&gt;")
	assert.Contains(t, text, "2024-05-01T12:00:00Z")
}

func TestSendJobFailureRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 2})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "a"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendJobFailureSurfacesWebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "a"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid_payload"))
}
