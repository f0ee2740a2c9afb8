// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and INFLUENCE_* env vars.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// APIBaseURL is the root of the upstream v2 REST API.
	APIBaseURL string `koanf:"api_base_url"`

	// BearerToken authenticates upstream requests. May be empty, in which
	// case the upstream rejects lookups and the rejection is surfaced.
	BearerToken string `koanf:"bearer_token"`

	// Keywords is the project keyword set counted as mentions. In env it is a
	// comma-separated list.
	Keywords []string `koanf:"keywords"`

	// UpstreamTimeoutMS bounds each upstream API call.
	UpstreamTimeoutMS int `koanf:"upstream_timeout_ms"`

	// AvatarTimeoutMS bounds each avatar download.
	AvatarTimeoutMS int `koanf:"avatar_timeout_ms"`

	// AvatarMaxBytes caps accepted avatar bodies.
	AvatarMaxBytes int64 `koanf:"avatar_max_bytes"`

	// DefaultAvatarURL is drawn when the account's avatar cannot be resolved.
	DefaultAvatarURL string `koanf:"default_avatar_url"`

	// BadgeLookupAvatar makes badge requests look the account up for its avatar.
	BadgeLookupAvatar bool `koanf:"badge_lookup_avatar"`

	// FontPath optionally points at a TTF/OTF file used for every badge line.
	FontPath string `koanf:"font_path"`

	// FontSizeLarge and FontSizeSmall are face sizes in pixels.
	FontSizeLarge float64 `koanf:"font_size_large"`
	FontSizeSmall float64 `koanf:"font_size_small"`

	// BadgeTitle is the line drawn above the score.
	BadgeTitle string `koanf:"badge_title"`

	// OTelEndpoint enables OTLP/HTTP trace export when set, e.g. "http://localhost:4318".
	OTelEndpoint string `koanf:"otel_endpoint"`

	// ServiceName is reported as the trace resource name.
	ServiceName string `koanf:"service_name"`

	// MetricsNamespace and MetricsSubsystem prefix the Prometheus metric names.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsLatencyBucketsMS overrides the latency histogram buckets. In env it
	// is a comma-separated list.
	MetricsLatencyBucketsMS []float64 `koanf:"metrics_latency_buckets_ms"`

	// MetricsConstLabels are attached to every metric, e.g. env or region. In
	// env it is a comma-separated list of key=value pairs.
	MetricsConstLabels map[string]string `koanf:"metrics_const_labels"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		APIBaseURL:        "https://api.twitter.com/2",
		Keywords:          []string{"مشروعنا", "اسم_مشروعك_الفريد", "أفضل_تطبيق"},
		UpstreamTimeoutMS: 10_000,
		AvatarTimeoutMS:   5_000,
		AvatarMaxBytes:    5 << 20,
		DefaultAvatarURL:  "https://abs.twimg.com/sticky/default_profile_images/default_profile.png",
		BadgeLookupAvatar: true,
		FontSizeLarge:     35,
		FontSizeSmall:     25,
		BadgeTitle:        "Project Influence Score",
		ServiceName:       "influence",
		MetricsNamespace:  "influence",
		MetricsSubsystem:  "score",
	}
}

// UpstreamTimeout returns UpstreamTimeoutMS as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutMS) * time.Millisecond
}

// AvatarTimeout returns AvatarTimeoutMS as a duration.
func (c *Config) AvatarTimeout() time.Duration {
	return time.Duration(c.AvatarTimeoutMS) * time.Millisecond
}
