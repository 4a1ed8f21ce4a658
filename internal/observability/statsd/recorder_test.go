package statsd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CopiesTags(t *testing.T) {
	rec := &Recorder{}
	tags := map[string]string{"status": "applied"}

	rec.Count("application.submitted", 1, tags)
	tags["status"] = "hired"
	rec.Gauge("jobs.active", 3, nil)
	rec.Timing("dispatcher.batch", 1500*time.Millisecond, tags)

	got := rec.Metrics()
	require.Len(t, got, 3)
	assert.Equal(t, map[string]string{"status": "applied"}, got[0].Tags)
	assert.Nil(t, got[1].Tags)
	assert.InDelta(t, 1500, got[2].Value, 0)
	assert.Equal(t, "hired", got[2].Tags["status"])

	got[2].Tags["status"] = "mutated"
	assert.Equal(t, "hired", rec.Find("dispatcher.batch")[0].Tags["status"], "recorded tags are not shared with callers")
}
