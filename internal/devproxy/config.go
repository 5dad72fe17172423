package devproxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RewriteRule replaces the first match of From (a regular expression) in
// the request path with To.
type RewriteRule struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// Config holds development proxy settings.
type Config struct {
	Listen       string        // e.g. ":8082"
	Target       string        // backend base, e.g. "http://backend:8010"
	Prefix       string        // requests under this path are proxied
	Rewrite      []RewriteRule // applied in order, first match wins
	ChangeOrigin bool          // send the target's host as Host
	StaticDir    string        // optional front-end build served for other paths
	CORSOrigins  []string
	// RateLimitRPS is the per-IP steady rate; 0 disables rate limiting.
	RateLimitRPS int
	// RateLimitBurst defaults to 2*RateLimitRPS when zero.
	RateLimitBurst   int
	RateLimitIdleTTL time.Duration

	HealthPath          string
	HealthInterval      time.Duration
	HealthFailThreshold int
}

// SetDefaults registers the default configuration on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("devproxy.listen", ":8082")
	v.SetDefault("devproxy.target", "http://backend:8010")
	v.SetDefault("devproxy.prefix", "/api")
	v.SetDefault("devproxy.rewrite", []map[string]string{{"from": "^/api", "to": "/api"}})
	v.SetDefault("devproxy.change_origin", true)
	v.SetDefault("devproxy.static_dir", "")
	v.SetDefault("devproxy.cors_origins", []string{"http://localhost:8080"})
	v.SetDefault("devproxy.rate_limit_rps", 0)
	v.SetDefault("devproxy.rate_limit_burst", 0)
	v.SetDefault("devproxy.rate_limit_idle_seconds", 600)
	v.SetDefault("devproxy.health_path", "/api/documents/")
	v.SetDefault("devproxy.health_interval_seconds", 30)
	v.SetDefault("devproxy.health_fail_threshold", 3)
}

// LoadConfig reads the devproxy.* keys from v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Listen:              v.GetString("devproxy.listen"),
		Target:              v.GetString("devproxy.target"),
		Prefix:              v.GetString("devproxy.prefix"),
		ChangeOrigin:        v.GetBool("devproxy.change_origin"),
		StaticDir:           v.GetString("devproxy.static_dir"),
		CORSOrigins:         v.GetStringSlice("devproxy.cors_origins"),
		RateLimitRPS:        v.GetInt("devproxy.rate_limit_rps"),
		RateLimitBurst:      v.GetInt("devproxy.rate_limit_burst"),
		RateLimitIdleTTL:    time.Duration(v.GetInt("devproxy.rate_limit_idle_seconds")) * time.Second,
		HealthPath:          v.GetString("devproxy.health_path"),
		HealthInterval:      time.Duration(v.GetInt("devproxy.health_interval_seconds")) * time.Second,
		HealthFailThreshold: v.GetInt("devproxy.health_fail_threshold"),
	}
	if err := v.UnmarshalKey("devproxy.rewrite", &cfg.Rewrite); err != nil {
		return Config{}, fmt.Errorf("decode devproxy.rewrite: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the target is an absolute URL and the prefix is a
// rooted path.
func (c Config) Validate() error {
	u, err := url.Parse(c.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", c.Target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target %q must include scheme and host", c.Target)
	}
	if !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("prefix %q must start with /", c.Prefix)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	return nil
}
