package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/config"
)

func TestRouterServices_TrustedProxies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.AppConfig{HTTP: config.HTTPConfig{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.7"}}}
	rs := routerServices(cfg, ServiceContainer{}, nil, logger)
	require.Len(t, rs.TrustedProxies, 2)
	assert.Equal(t, "10.0.0.0/8", rs.TrustedProxies[0].String())
	assert.Empty(t, rs.Readiness, "no database or cache to probe")

	cfg.HTTP.TrustedProxies = []string{"lb.internal"}
	assert.Empty(t, routerServices(cfg, ServiceContainer{}, nil, logger).TrustedProxies)
}
