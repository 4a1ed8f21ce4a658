package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"  kaamsathi.api  ":           "kaamsathi.api",
		"..reconciler..pass.":         "reconciler.pass",
		"dispatcher/webhook post":     "dispatcher_webhook_post",
		"application.status|to:hired": "application.status_to_hired",
		".":                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanName(in), in)
	}
}

func TestCleanTags(t *testing.T) {
	got := cleanTags(map[string]string{
		" from ": " pending ",
		"":       "dropped",
		"to":     "a,b|c",
	})
	assert.Equal(t, map[string]string{"from": "pending", "to": "a_b_c"}, got)
	assert.Nil(t, cleanTags(nil))
}

func TestClientLine(t *testing.T) {
	c := &Client{prefix: "kaamsathi", global: map[string]string{"env": "prod", "service": "api"}}

	assert.Equal(t, "kaamsathi.dispatcher.delivered:3|c|#env:prod,service:api",
		c.line("dispatcher.delivered", "3", "c", nil))
	assert.Equal(t, "kaamsathi.application.status:1|c|#env:stage,from:pending,service:api,to:shortlisted",
		c.line("application.status", "1", "c", map[string]string{"from": "pending", "to": "shortlisted", "env": "stage"}))
	assert.Empty(t, c.line("  ", "1", "c", nil))

	// Local tags must not leak into the shared global set.
	assert.Equal(t, map[string]string{"env": "prod", "service": "api"}, c.global)

	bare := &Client{}
	assert.Equal(t, "reconciler.rows:7|c|#step:expire", bare.line("reconciler.rows", "7", "c", map[string]string{"step": "expire"}))
	assert.Equal(t, "reconciler.pass:1|c", bare.line("reconciler.pass", "1", "c", nil))
}

func TestClientWritesOverConnection(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()

	c := &Client{prefix: "ks", conn: local}
	require.True(t, c.Enabled())

	got := make(chan string, 3)
	go func() {
		buf := make([]byte, 256)
		for range 3 {
			n, err := peer.Read(buf)
			if err != nil {
				return
			}
			got <- string(buf[:n])
		}
	}()

	c.Count("jobs.created", 2, nil)
	c.Gauge("reconciler.employer_mismatches", 1.5, nil)
	c.Timing("reconciler.pass_duration", 1500*time.Microsecond, nil)

	assert.Equal(t, "ks.jobs.created:2|c", <-got)
	assert.Equal(t, "ks.reconciler.employer_mismatches:1.5|g", <-got)
	assert.Equal(t, "ks.reconciler.pass_duration:1.5|ms", <-got)

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
	c.Count("jobs.created", 1, nil)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
	c.Count("x", 1, nil)
	c.Gauge("x", 1, nil)
	c.Timing("x", time.Second, nil)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c, err = NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	_, err = NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
