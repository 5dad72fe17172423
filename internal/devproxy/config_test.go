package devproxy

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, ":8082", cfg.Listen)
	assert.Equal(t, "http://backend:8010", cfg.Target)
	assert.Equal(t, "/api", cfg.Prefix)
	assert.True(t, cfg.ChangeOrigin)
	assert.Equal(t, []RewriteRule{{From: "^/api", To: "/api"}}, cfg.Rewrite)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, 3, cfg.HealthFailThreshold)
	assert.Zero(t, cfg.RateLimitRPS)
	assert.Zero(t, cfg.RateLimitBurst)
	assert.Equal(t, 10*time.Minute, cfg.RateLimitIdleTTL)
}

func TestLoadConfig_overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("devproxy.target", "http://127.0.0.1:9000")
	v.Set("devproxy.rewrite", []map[string]string{{"from": "^/api", "to": ""}})
	v.Set("devproxy.rate_limit_rps", 5)
	v.Set("devproxy.rate_limit_burst", 20)
	v.Set("devproxy.rate_limit_idle_seconds", 60)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.Target)
	assert.Equal(t, []RewriteRule{{From: "^/api", To: ""}}, cfg.Rewrite)
	assert.Equal(t, 5, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, time.Minute, cfg.RateLimitIdleTTL)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{Listen: ":8082", Target: "http://backend:8010", Prefix: "/api"}
	require.NoError(t, base.Validate())

	noScheme := base
	noScheme.Target = "backend:8010"
	assert.Error(t, noScheme.Validate())

	badPrefix := base
	badPrefix.Prefix = "api"
	assert.Error(t, badPrefix.Validate())

	negativeBurst := base
	negativeBurst.RateLimitBurst = -1
	assert.Error(t, negativeBurst.Validate())

	noListen := base
	noListen.Listen = ""
	assert.Error(t, noListen.Validate())
}
