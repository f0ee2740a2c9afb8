// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/influence/internal/adapters/avatar"
	"github.com/okian/influence/internal/adapters/twitter"
	"github.com/okian/influence/internal/domain/badge"
	"github.com/okian/influence/internal/domain/model"
	"github.com/okian/influence/internal/domain/scoring"
	"github.com/okian/influence/pkg/logger"
	"github.com/okian/influence/pkg/metrics"
	"github.com/okian/influence/pkg/tracing"
)

// DefaultAvatarURL is drawn when the account's own avatar cannot be resolved.
const DefaultAvatarURL = "https://abs.twimg.com/sticky/default_profile_images/default_profile.png"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Renderer draws a badge.
type Renderer interface {
	Render(ctx context.Context, username string, score int, avatar badge.Avatar) ([]byte, error)
}

// AvatarFetcher downloads avatar bytes.
type AvatarFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Service scores accounts and renders their badges. It keeps no
// per-request state; the counters exist for /stats only.
type Service struct {
	gateway  twitter.Gateway
	scorer   scoring.Scorer
	renderer Renderer
	fetcher  AvatarFetcher

	defaultAvatarURL string
	lookupAvatar     bool

	scoresComputed   atomic.Int64
	scoreFailures    atomic.Int64
	upstreamFailures atomic.Int64
	badgesRendered   atomic.Int64
	badgeFailures    atomic.Int64
	avatarFallbacks  atomic.Int64

	startedAt time.Time
	logger    logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithGateway sets the upstream gateway.
func WithGateway(g twitter.Gateway) Option {
	return func(s *Service) {
		if g != nil {
			s.gateway = g
		}
	}
}

// WithScorer sets the score calculator.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithRenderer sets the badge renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Service) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithAvatarFetcher sets the avatar fetcher.
func WithAvatarFetcher(f AvatarFetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithDefaultAvatarURL sets the avatar used when the account's own cannot be
// resolved. An empty URL renders such badges without an avatar.
func WithDefaultAvatarURL(u string) Option {
	return func(s *Service) { s.defaultAvatarURL = u }
}

// WithAvatarLookup controls whether badge requests look the account up to
// find its avatar. When disabled every badge uses the default avatar.
func WithAvatarLookup(enabled bool) Option {
	return func(s *Service) { s.lookupAvatar = enabled }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Missing collaborators get their defaults.
func New(opts ...Option) *Service {
	s := &Service{
		defaultAvatarURL: DefaultAvatarURL,
		lookupAvatar:     true,
		startedAt:        time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.gateway == nil {
		s.gateway = twitter.NewClient(twitter.WithLogger(s.logger))
	}
	if s.scorer == nil {
		s.scorer = scoring.NewCalculator()
	}
	if s.renderer == nil {
		s.renderer = badge.NewRenderer(nil, badge.WithLogger(s.logger))
	}
	if s.fetcher == nil {
		s.fetcher = avatar.NewFetcher(avatar.WithLogger(s.logger))
	}
	return s
}

// NormalizeUsername trims whitespace and one leading '@' and checks the
// result against the platform's handle rules.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if !usernamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, raw)
	}
	return name, nil
}

// Score looks the account up, counts its keyword mentions and computes the
// score. Gateway errors are returned wrapped so callers can inspect them.
func (s *Service) Score(ctx context.Context, username string) (model.ScoreResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "service.Score")
	defer span.End()

	name, err := NormalizeUsername(username)
	if err != nil {
		metrics.RecordScoringError("invalid_username")
		return model.ScoreResult{}, err
	}
	span.SetAttributes(attribute.String("username", name))

	profile, err := s.gateway.LookupUser(ctx, name)
	if err != nil {
		s.scoreFailures.Add(1)
		s.upstreamFailures.Add(1)
		metrics.RecordScoringError("lookup")
		metrics.RecordErrorByComponent("gateway", "lookup")
		s.logger.Warn(ctx, "user lookup failed", logger.String("username", name), logger.Error(err))
		return model.ScoreResult{}, fmt.Errorf("lookup %s: %w", name, err)
	}

	mentions, err := s.gateway.CountMentions(ctx, name)
	if err != nil {
		s.scoreFailures.Add(1)
		s.upstreamFailures.Add(1)
		metrics.RecordScoringError("search")
		metrics.RecordErrorByComponent("gateway", "search")
		s.logger.Warn(ctx, "mention search failed", logger.String("username", name), logger.Error(err))
		return model.ScoreResult{}, fmt.Errorf("search %s: %w", name, err)
	}

	if profile.Metrics.CreatedAt.IsZero() {
		s.logger.Debug(ctx, "account age unknown, assuming one day", logger.String("username", name))
	}

	result := s.scorer.Compute(profile.Metrics, mentions)
	result.Username = name
	result.AvatarURL = profile.AvatarURL

	s.scoresComputed.Add(1)
	metrics.RecordScoreComputed(result.Score)
	span.SetAttributes(attribute.Int("score", result.Score))
	s.logger.Debug(ctx, "score computed",
		logger.String("username", name),
		logger.Int("score", result.Score),
		logger.Int("mentions", mentions),
		logger.Int("followers", profile.Metrics.FollowersCount))

	return result, nil
}

// Badge renders the badge for username with the given score. The score is
// drawn as supplied and only range-checked. Avatar failures never fail the
// badge; render failures wrap badge.ErrRender.
func (s *Service) Badge(ctx context.Context, username string, score int) ([]byte, error) {
	ctx, span := tracing.Tracer().Start(ctx, "service.Badge")
	defer span.End()

	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if score < 0 || score > scoring.MaxScore {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidScore, score, scoring.MaxScore)
	}

	av := s.loadAvatar(ctx, name)

	png, err := s.renderer.Render(ctx, name, score, av)
	if err != nil {
		s.badgeFailures.Add(1)
		metrics.RecordErrorByComponent("badge", "render")
		s.logger.Error(ctx, "badge render failed", logger.String("username", name), logger.Error(err))
		return nil, err
	}
	s.badgesRendered.Add(1)
	return png, nil
}

// loadAvatar resolves and fetches the avatar, degrading to NoAvatar.
func (s *Service) loadAvatar(ctx context.Context, name string) badge.Avatar {
	url := s.resolveAvatarURL(ctx, name)
	if url == "" {
		_ = metrics.RecordAvatarFetch(metrics.AvatarSkipped)
		return badge.NoAvatar()
	}

	data, err := s.fetcher.Fetch(ctx, avatar.UpgradeURL(url))
	if err != nil {
		s.avatarFallbacks.Add(1)
		_ = metrics.RecordAvatarFetch(metrics.AvatarFetchFailed)
		s.logger.Debug(ctx, "avatar fetch failed, rendering without it",
			logger.String("username", name),
			logger.String("url", url),
			logger.Error(err))
		return badge.NoAvatar()
	}
	_ = metrics.RecordAvatarFetch(metrics.AvatarFetched)
	return badge.AvatarBytes(data)
}

func (s *Service) resolveAvatarURL(ctx context.Context, name string) string {
	if !s.lookupAvatar {
		return s.defaultAvatarURL
	}
	profile, err := s.gateway.LookupUser(ctx, name)
	if err != nil || profile.AvatarURL == "" {
		s.avatarFallbacks.Add(1)
		s.logger.Debug(ctx, "using default avatar", logger.String("username", name), logger.Error(err))
		return s.defaultAvatarURL
	}
	return profile.AvatarURL
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"uptimeSeconds":    int64(time.Since(s.startedAt).Seconds()),
		"scoresComputed":   s.scoresComputed.Load(),
		"scoreFailures":    s.scoreFailures.Load(),
		"upstreamFailures": s.upstreamFailures.Load(),
		"badgesRendered":   s.badgesRendered.Load(),
		"badgeFailures":    s.badgeFailures.Load(),
		"avatarFallbacks":  s.avatarFallbacks.Load(),
		"avatarLookup":     s.lookupAvatar,
	}
	if kw, ok := s.gateway.(interface{ Keywords() []string }); ok {
		stats["keywordCount"] = len(kw.Keywords())
	}
	if r, ok := s.renderer.(interface{ Fonts() *badge.Fonts }); ok && r.Fonts() != nil {
		stats["fontSource"] = string(r.Fonts().Source())
	}
	return stats
}
