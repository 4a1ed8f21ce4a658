package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/config"
)

func TestRedisConfigured(t *testing.T) {
	assert.False(t, RedisConfigured(config.RedisConfig{}))
	assert.True(t, RedisConfigured(config.RedisConfig{URI: "localhost:6379"}))
	assert.True(t, RedisConfigured(config.RedisConfig{UseCluster: true, ClusterNodes: []string{"n1:7000"}}))
	assert.False(t, RedisConfigured(config.RedisConfig{UseCluster: true, ClusterNodes: []string{" "}}))
	assert.False(t, RedisConfigured(config.RedisConfig{UseSentinel: true, URI: "localhost:6379"}))
	assert.True(t, RedisConfigured(config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s:26379"}}))
}

func TestConnectInfra_NothingRequested(t *testing.T) {
	infra, err := ConnectInfra(&config.AppConfig{}, nil, Needs{RedisIfConfigured: true})
	require.NoError(t, err)
	assert.Nil(t, infra.DB)
	assert.Nil(t, infra.Redis)
	assert.NoError(t, infra.Close())
}

func TestConnectInfra_RedisRequiredButMissing(t *testing.T) {
	_, err := ConnectInfra(&config.AppConfig{}, nil, Needs{Redis: true})
	require.ErrorIs(t, err, ErrRedisNotConfigured)
}

func TestInfraClose_Nil(t *testing.T) {
	var infra *Infra
	assert.NoError(t, infra.Close())
}
