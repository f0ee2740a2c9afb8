package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/influence/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.APIBaseURL, convey.ShouldEqual, "https://api.twitter.com/2")
			convey.So(cfg.Keywords, convey.ShouldHaveLength, 3)
			convey.So(cfg.AvatarMaxBytes, convey.ShouldEqual, int64(5<<20))
			convey.So(cfg.BadgeLookupAvatar, convey.ShouldBeTrue)
			convey.So(cfg.FontSizeLarge, convey.ShouldEqual, 35.0)
			convey.So(cfg.FontSizeSmall, convey.ShouldEqual, 25.0)
			convey.So(cfg.OTelEndpoint, convey.ShouldBeEmpty)
		})

		convey.Convey("Then the timeouts should convert to durations", func() {
			convey.So(cfg.UpstreamTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.AvatarTimeout(), convey.ShouldEqual, 5*time.Second)
		})

		convey.Convey("Then the defaults should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs breaking one rule each", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }},
			{"zero upstream timeout", func(c *config.Config) { c.UpstreamTimeoutMS = 0 }},
			{"negative avatar timeout", func(c *config.Config) { c.AvatarTimeoutMS = -1 }},
			{"zero avatar bytes", func(c *config.Config) { c.AvatarMaxBytes = 0 }},
			{"zero font size", func(c *config.Config) { c.FontSizeSmall = 0 }},
			{"no keywords", func(c *config.Config) { c.Keywords = nil }},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"dashed metrics namespace", func(c *config.Config) { c.MetricsNamespace = "my-app" }},
			{"reserved label name", func(c *config.Config) { c.MetricsConstLabels = map[string]string{"__name": "x"} }},
			{"unsorted buckets", func(c *config.Config) { c.MetricsLatencyBucketsMS = []float64{10, 5} }},
		}

		for _, tc := range cases {
			tc := tc
			convey.Convey("When the config has "+tc.name, func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)

				convey.Convey("Then validation should fail with an invalid config error", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
