package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#ops",
		Username:   "bot",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.FailurePayload{
		Component:  "reconciler",
		Operation:  "reconcile",
		Summary:    "reconcile pass failed",
		Error:      "boom",
		ErrorClass: "postgres_40001",
		Metadata:   map[string]string{"expired_jobs": "3"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#ops", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{"KaamSathi alert", "reconciler", "reconcile pass failed", "boom", "postgres_40001", "expired_jobs: 3"} {
		assert.Contains(t, text, want)
	}
}

func TestFormatMessageWarningHeader(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.FailurePayload{Component: "reconciler", Severity: notify.SeverityWarning})
	assert.True(t, strings.HasPrefix(msg["text"].(string), "*KaamSathi warning*"))
}

func TestFormatJobValue(t *testing.T) {
	tcs := []struct {
		name   string
		jobID  string
		prefix string
		want   string
	}{
		{name: "with link", jobID: "job-1", prefix: "https://app.example/jobs", want: "<https://app.example/jobs/job-1|job-1>"},
		{name: "invalid prefix", jobID: "job-2", prefix: "not a url", want: "job-2"},
		{name: "escaped id", jobID: "a<b", want: "a&lt;b"},
		{name: "empty", prefix: "https://app.example/jobs", want: ""},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test", JobURLPrefix: tc.prefix})
			require.NoError(t, err)
			assert.Equal(t, tc.want, client.formatJobValue(tc.jobID))
		})
	}
}

func TestSendFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if calls.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	require.NoError(t, client.SendFailure(context.Background(), notify.FailurePayload{Component: "dispatcher"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendFailure(context.Background(), notify.FailurePayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_token")
}
