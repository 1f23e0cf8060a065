package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults for settings that are not overridden by environment or flags.
const (
	DefaultListen          = ":8080"
	DefaultExpiry          = 3600   // seconds
	DefaultMaxExpiry       = 604800 // S3's presign ceiling (7 days), in seconds
	DefaultConcurrency     = 8
	DefaultPartConcurrency = 4
)

// Config holds the immutable runtime configuration of the gateway. It is
// materialized once at startup and passed by value; request handling never
// consults the environment.
type Config struct {
	// Listen is the public listener address for the batch API.
	Listen string

	// MetricsListen is the admin listener address serving Prometheus
	// metrics. Empty disables the admin listener.
	MetricsListen string

	// Expiry is the presigned-URL lifetime in seconds used when a request
	// carries no expiry override.
	Expiry int64

	// MaxExpiry caps per-request expiry overrides.
	MaxExpiry int64

	// Region is the default signing region when a request carries no
	// region override. Empty falls back to the ambient AWS config chain.
	Region string

	// Endpoint is the default storage endpoint when a request carries no
	// endpoint override. Empty means the public S3 endpoint.
	Endpoint string

	// PathStyle forces path-style bucket addressing, which most
	// S3-compatible backends require.
	PathStyle bool

	// Concurrency bounds the per-request object fan-out.
	Concurrency int

	// PartConcurrency bounds the per-object part-URL fan-out.
	PartConcurrency int

	// LogLevel is the logrus level name.
	LogLevel string
}

// Load builds a Config from LFSGATE_* environment variables, optionally
// overridden by command-line flags. flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LFSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", DefaultListen)
	v.SetDefault("metrics-listen", "")
	v.SetDefault("default-expiry", DefaultExpiry)
	v.SetDefault("max-expiry", DefaultMaxExpiry)
	v.SetDefault("region", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("path-style", false)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("part-concurrency", DefaultPartConcurrency)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := Config{
		Listen:          v.GetString("listen"),
		MetricsListen:   v.GetString("metrics-listen"),
		Expiry:          v.GetInt64("default-expiry"),
		MaxExpiry:       v.GetInt64("max-expiry"),
		Region:          v.GetString("region"),
		Endpoint:        v.GetString("endpoint"),
		PathStyle:       v.GetBool("path-style"),
		Concurrency:     v.GetInt("concurrency"),
		PartConcurrency: v.GetInt("part-concurrency"),
		LogLevel:        v.GetString("log-level"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.Expiry <= 0 {
		return fmt.Errorf("default expiry must be positive, got %d", c.Expiry)
	}
	if c.MaxExpiry < c.Expiry {
		return fmt.Errorf("max expiry %d is below default expiry %d", c.MaxExpiry, c.Expiry)
	}
	if c.Concurrency < 1 || c.PartConcurrency < 1 {
		return fmt.Errorf("concurrency bounds must be at least 1")
	}
	return nil
}
