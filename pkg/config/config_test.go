package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("engine:\n  pairs: [EURUSD]\n"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Store.Backend)
	assert.Equal(t, "memory", c.Cache.Backend)
	assert.Equal(t, 15*time.Second, c.Cache.CandleTTL)
	assert.Equal(t, "1h", c.Engine.Timeframe)
	assert.Equal(t, 200, c.Engine.Bars)
	assert.Equal(t, time.Minute, c.Engine.Interval)
	assert.Equal(t, "pgx", c.Postgres.Driver)
	assert.Equal(t, "signalfusion", c.Server.Auth.Issuer)
	assert.Equal(t, "fusion.outcomes", c.Kafka.OutcomesTopic)
	assert.Equal(t, uint32(3), c.Producers.Breaker.MinRequests)
	assert.Equal(t, []string{"EURUSD"}, c.Engine.Pairs)
	assert.Equal(t, "enabled", c.Server.CORS)
	assert.Equal(t, 10, c.ClickHouse.MaxOpenConns)
	assert.Equal(t, 5, c.ClickHouse.MaxIdleConns)
	assert.Equal(t, time.Minute, c.ClickHouse.MaxExecutionTime)
}

func TestParseKeepsExplicitCORSDisabled(t *testing.T) {
	c, err := Parse([]byte("server:\n  cors: disabled\n"))
	require.NoError(t, err)
	assert.Equal(t, "disabled", c.Server.CORS)

	_, err = Parse([]byte("server:\n  cors: maybe\n"))
	assert.Error(t, err)
}

func TestParseRejectsInconsistentConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "store:\n  backend: etcd\n"},
		{"unknown cache backend", "cache:\n  backend: memcached\n"},
		{"postgres without dsn", "store:\n  backend: postgres\n"},
		{"consumer without brokers", "kafka:\n  consumer:\n    enabled: true\n"},
		{"clickhouse audit while disabled", "audit:\n  sinks: [clickhouse]\n"},
		{"unknown audit sink", "audit:\n  sinks: [s3]\n"},
		{"remote producer without url", "producers:\n  remote:\n    - id: x\n      type: news\n"},
		{"too few bars", "engine:\n  bars: 5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  pairs: [EURUSD]\n"), 0o600))
	t.Setenv("FUSION_PAIRS", "GBPUSD,USDJPY")
	t.Setenv("FUSION_AUTH_SECRET", "s3cret")
	t.Setenv("PORT", "9090")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"GBPUSD", "USDJPY"}, c.Engine.Pairs)
	assert.Equal(t, "s3cret", c.Server.Auth.Secret)
	assert.Equal(t, 9090, c.Server.Port)
}

func TestParseEngineKeepsDefaultTables(t *testing.T) {
	e, err := ParseEngine([]byte("fusion:\n  pooling: mean\ngate:\n  min_consensus: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, "mean", e.Fusion.Pooling)
	assert.Equal(t, 0.10, e.Fusion.BaseWeight)
	assert.Equal(t, 1.3, e.Fusion.RegimeWeights["multi_timeframe"]["trending_bullish"])
	assert.Len(t, e.Fusion.Correlations, len(DefaultCorrelations()))
	assert.Empty(t, e.Gate.MinConsensus, "explicit empty table disables the floor")

	_, err = ParseEngine([]byte("fusion:\n  pooling: median\n"))
	assert.Error(t, err)
	_, err = ParseEngine([]byte("fusion:\n  regime_weights:\n    news:\n      shock_up: 9\n"))
	assert.Error(t, err)
}

func TestEngineSourceKeepsLastGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gate:\n  force_accept: true\n"), 0o600))
	src := NewEngineSource(path)

	e, err := src.Load()
	require.NoError(t, err)
	assert.True(t, e.Gate.ForceAccept)

	require.NoError(t, os.WriteFile(path, []byte("fusion: [not, a, map"), 0o600))
	e, err = src.Load()
	assert.Error(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Gate.ForceAccept, "broken file falls back to the last good copy")

	e, err = NewEngineSource("").Load()
	require.NoError(t, err)
	assert.False(t, e.Gate.ForceAccept)
}
