// Package scoring computes the normalized influence score of an account.
//
// Each raw input is divided by a fixed saturation cap and clamped to [0,1];
// the four normalized components are combined with fixed weights into an
// integer score in [0,1000].
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/okian/influence/internal/domain/model"
)

// Component names a scoring input.
type Component string

// Scoring components.
const (
	KeywordMentions Component = "keywordMentions"
	FollowersCount  Component = "followersCount"
	TweetCount      Component = "tweetCount"
	AccountAge      Component = "accountAge"
)

// Weights are held in thousandths so that they sum to exactly MaxScore.
const (
	mentionsPerMille  = 600
	followersPerMille = 250
	tweetsPerMille    = 100
	agePerMille       = 50
)

// Saturation caps. Raw values at or above a cap normalize to 1.0.
const (
	MentionsCap       = 100
	FollowersCap      = 10_000
	TweetsCap         = 5_000
	AccountAgeDaysCap = 1_095
)

const (
	// MaxScore is the score of an account with every component saturated.
	MaxScore = 1000

	// DefaultAccountAgeDays is used when the creation time is unknown.
	DefaultAccountAgeDays = 1

	day = 24 * time.Hour
)

// Scorer computes a score from account metrics and a mention count.
type Scorer interface {
	Compute(metrics model.AccountMetrics, mentions int) model.ScoreResult
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithClock overrides the time source used to compute account age.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// Calculator implements Scorer. It has no mutable state and is safe for
// concurrent use.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a calculator using the wall clock unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute returns the score for metrics and mentions. Username and avatar are
// left for the caller to attach.
func (c *Calculator) Compute(metrics model.AccountMetrics, mentions int) model.ScoreResult {
	ageDays := c.AccountAgeDays(metrics.CreatedAt)

	b := model.Breakdown{
		Mentions:       Normalize(float64(mentions), MentionsCap),
		Followers:      Normalize(float64(metrics.FollowersCount), FollowersCap),
		Tweets:         Normalize(float64(metrics.TweetCount), TweetsCap),
		AccountAge:     Normalize(float64(ageDays), AccountAgeDaysCap),
		AccountAgeDays: ageDays,
	}

	return model.ScoreResult{
		Score:          ScoreFromBreakdown(b),
		MentionsCount:  mentions,
		FollowersCount: metrics.FollowersCount,
		Breakdown:      b,
	}
}

// AccountAgeDays returns whole days elapsed since createdAt. A zero createdAt
// yields DefaultAccountAgeDays; a creation time in the future yields 0.
func (c *Calculator) AccountAgeDays(createdAt time.Time) int {
	if createdAt.IsZero() {
		return DefaultAccountAgeDays
	}
	elapsed := c.now().Sub(createdAt.UTC())
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}

// Normalize maps raw onto [0,1] by dividing by limit and clamping.
func Normalize(raw, limit float64) float64 {
	if limit <= 0 || raw <= 0 || math.IsNaN(raw) {
		return 0
	}
	return math.Min(raw/limit, 1.0)
}

// ScoreFromBreakdown combines normalized components into the final score.
func ScoreFromBreakdown(b model.Breakdown) int {
	weighted := mentionsPerMille*clamp01(b.Mentions) +
		followersPerMille*clamp01(b.Followers) +
		tweetsPerMille*clamp01(b.Tweets) +
		agePerMille*clamp01(b.AccountAge)

	score := int(math.Floor(weighted))
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func clamp01(v float64) float64 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// Weights returns the fractional weight of every component. The map is a
// fresh copy on every call.
func Weights() map[Component]float64 {
	return map[Component]float64{
		KeywordMentions: mentionsPerMille / float64(MaxScore),
		FollowersCount:  followersPerMille / float64(MaxScore),
		TweetCount:      tweetsPerMille / float64(MaxScore),
		AccountAge:      agePerMille / float64(MaxScore),
	}
}

// Caps returns the saturation ceiling of every component.
func Caps() map[Component]float64 {
	return map[Component]float64{
		KeywordMentions: MentionsCap,
		FollowersCount:  FollowersCap,
		TweetCount:      TweetsCap,
		AccountAge:      AccountAgeDaysCap,
	}
}

// Layouts accepted for account creation timestamps, most specific first.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	time.RubyDate, // v1.1 style: "Wed Oct 10 20:19:24 +0000 2018"
}

// ParseCreatedAt parses an upstream creation timestamp. Empty or unparsable
// input yields the zero time, which Compute treats as an unknown age.
func ParseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
