package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "INFLUENCE_"
	envConfigPath = "INFLUENCE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if INFLUENCE_CONFIG is set
//  3. env (prefix INFLUENCE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// INFLUENCE_BEARER_TOKEN -> bearer_token. Keys stay flat with underscores
	// to match the koanf tags; keywords are split on commas.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		switch key {
		case "keywords":
			return key, splitList(value)
		case "metrics_latency_buckets_ms":
			return key, parseFloats(value)
		case "metrics_const_labels":
			return key, parseLabels(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the server relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.UpstreamTimeoutMS <= 0:
		return fmt.Errorf("%w: upstream_timeout_ms must be positive", ErrInvalidConfig)
	case c.AvatarTimeoutMS <= 0:
		return fmt.Errorf("%w: avatar_timeout_ms must be positive", ErrInvalidConfig)
	case c.AvatarMaxBytes <= 0:
		return fmt.Errorf("%w: avatar_max_bytes must be positive", ErrInvalidConfig)
	case c.FontSizeLarge <= 0 || c.FontSizeSmall <= 0:
		return fmt.Errorf("%w: font sizes must be positive", ErrInvalidConfig)
	case len(c.Keywords) == 0:
		return fmt.Errorf("%w: keywords must not be empty", ErrInvalidConfig)
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	metricNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	labelNamePattern  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func (c *Config) validateMetrics() error {
	for key, v := range map[string]string{"metrics_namespace": c.MetricsNamespace, "metrics_subsystem": c.MetricsSubsystem} {
		if v != "" && !metricNamePattern.MatchString(v) {
			return fmt.Errorf("%w: %s %q is not a valid metric name part", ErrInvalidConfig, key, v)
		}
	}
	for name := range c.MetricsConstLabels {
		if !labelNamePattern.MatchString(name) || strings.HasPrefix(name, "__") {
			return fmt.Errorf("%w: metrics_const_labels: invalid label name %q", ErrInvalidConfig, name)
		}
	}
	for i := 1; i < len(c.MetricsLatencyBucketsMS); i++ {
		if c.MetricsLatencyBucketsMS[i] <= c.MetricsLatencyBucketsMS[i-1] {
			return fmt.Errorf("%w: metrics_latency_buckets_ms must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}

// parseFloats returns the list as numbers, or the raw value when any element
// is not a number so that unmarshalling reports it.
func parseFloats(s string) interface{} {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return s
		}
		out = append(out, f)
	}
	return out
}

// parseLabels turns "env=prod,region=eu" into a map, or returns the raw value
// when a pair is malformed so that unmarshalling reports it.
func parseLabels(s string) interface{} {
	out := map[string]interface{}{}
	for _, pair := range splitList(s) {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return s
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
