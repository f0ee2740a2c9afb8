package scoring_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/influence/internal/domain/model"
	scoring "github.com/okian/influence/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return fixedNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func newCalculator() *scoring.Calculator {
	return scoring.NewCalculator(scoring.WithClock(func() time.Time { return fixedNow }))
}

func TestCalculator_Compute(t *testing.T) {
	Convey("Given a calculator with a fixed clock", t, func() {
		calc := newCalculator()

		Convey("When every component is at its cap", func() {
			result := calc.Compute(model.AccountMetrics{
				FollowersCount: 10_000,
				TweetCount:     5_000,
				CreatedAt:      daysAgo(1095),
			}, 100)

			Convey("Then every normalized component should be 1 and the score 1000", func() {
				So(result.Breakdown.Mentions, ShouldEqual, 1.0)
				So(result.Breakdown.Followers, ShouldEqual, 1.0)
				So(result.Breakdown.Tweets, ShouldEqual, 1.0)
				So(result.Breakdown.AccountAge, ShouldEqual, 1.0)
				So(result.Score, ShouldEqual, 1000)
			})

			Convey("And the raw mention and follower counts should be carried through", func() {
				So(result.MentionsCount, ShouldEqual, 100)
				So(result.FollowersCount, ShouldEqual, 10_000)
			})
		})

		Convey("When everything is zero and the creation time is unknown", func() {
			result := calc.Compute(model.AccountMetrics{}, 0)

			Convey("Then the age should default to one day and the score be 0", func() {
				So(result.Breakdown.AccountAgeDays, ShouldEqual, 1)
				So(result.Score, ShouldEqual, 0)
			})
		})

		Convey("When every component is at half its cap", func() {
			result := calc.Compute(model.AccountMetrics{
				FollowersCount: 5_000,
				TweetCount:     2_500,
				CreatedAt:      daysAgo(547),
			}, 50)

			Convey("Then mentions, followers and tweets normalize to exactly 0.5", func() {
				So(result.Breakdown.Mentions, ShouldEqual, 0.5)
				So(result.Breakdown.Followers, ShouldEqual, 0.5)
				So(result.Breakdown.Tweets, ShouldEqual, 0.5)
				So(result.Breakdown.AccountAge, ShouldAlmostEqual, 0.5, 0.001)
			})

			Convey("And the floored score reflects 547/1095 being just under one half", func() {
				// 600*0.5 + 250*0.5 + 100*0.5 + 50*(547/1095) = 499.977...
				So(result.Score, ShouldEqual, 499)
			})
		})

		Convey("When inputs exceed their caps", func() {
			atCap := calc.Compute(model.AccountMetrics{FollowersCount: 10_000, CreatedAt: daysAgo(10)}, 3)
			aboveCap := calc.Compute(model.AccountMetrics{FollowersCount: 1_000_000, CreatedAt: daysAgo(10)}, 3)

			Convey("Then they normalize identically to the cap", func() {
				So(aboveCap.Breakdown.Followers, ShouldEqual, 1.0)
				So(aboveCap.Score, ShouldEqual, atCap.Score)
				So(aboveCap.FollowersCount, ShouldEqual, 1_000_000)
			})
		})

		Convey("When the creation time is missing", func() {
			missing := calc.Compute(model.AccountMetrics{FollowersCount: 1234, TweetCount: 77}, 9)
			oneDay := calc.Compute(model.AccountMetrics{FollowersCount: 1234, TweetCount: 77, CreatedAt: daysAgo(1)}, 9)

			Convey("Then the score should equal that of a one-day-old account", func() {
				So(missing.Score, ShouldEqual, oneDay.Score)
				So(missing.Breakdown.AccountAgeDays, ShouldEqual, oneDay.Breakdown.AccountAgeDays)
			})
		})

		Convey("When the creation time is in the future", func() {
			result := calc.Compute(model.AccountMetrics{CreatedAt: fixedNow.Add(72 * time.Hour)}, 0)

			Convey("Then the age component should clamp to zero", func() {
				So(result.Breakdown.AccountAgeDays, ShouldEqual, 0)
				So(result.Breakdown.AccountAge, ShouldEqual, 0.0)
				So(result.Score, ShouldEqual, 0)
			})
		})

		Convey("When the account is a few hours short of a whole day", func() {
			age := calc.AccountAgeDays(fixedNow.Add(-47 * time.Hour))

			Convey("Then the age should be truncated to whole days", func() {
				So(age, ShouldEqual, 1)
			})
		})
	})
}

func TestCalculator_Properties(t *testing.T) {
	Convey("Given a grid of non-negative inputs", t, func() {
		calc := newCalculator()
		values := []int{0, 1, 7, 50, 99, 100, 101, 2_500, 4_999, 5_000, 9_999, 10_000, 250_000}
		ages := []int{0, 1, 30, 364, 547, 1094, 1095, 4000}

		Convey("Then every score should be within [0, 1000]", func() {
			for _, v := range values {
				for _, a := range ages {
					r := calc.Compute(model.AccountMetrics{FollowersCount: v, TweetCount: v, CreatedAt: daysAgo(a)}, v)
					So(r.Score, ShouldBeBetweenOrEqual, 0, 1000)
				}
			}
		})

		Convey("Then the score should be non-decreasing in each input", func() {
			base := model.AccountMetrics{FollowersCount: 300, TweetCount: 300, CreatedAt: daysAgo(300)}
			prevMentions, prevFollowers, prevTweets, prevAge := -1, -1, -1, -1
			for _, v := range values {
				m := calc.Compute(base, v).Score
				So(m, ShouldBeGreaterThanOrEqualTo, prevMentions)
				prevMentions = m

				f := base
				f.FollowersCount = v
				fs := calc.Compute(f, 30).Score
				So(fs, ShouldBeGreaterThanOrEqualTo, prevFollowers)
				prevFollowers = fs

				tw := base
				tw.TweetCount = v
				ts := calc.Compute(tw, 30).Score
				So(ts, ShouldBeGreaterThanOrEqualTo, prevTweets)
				prevTweets = ts
			}
			for _, a := range ages {
				ag := base
				ag.CreatedAt = daysAgo(a)
				as := calc.Compute(ag, 30).Score
				So(as, ShouldBeGreaterThanOrEqualTo, prevAge)
				prevAge = as
			}
		})
	})
}

func TestWeightsAndCaps(t *testing.T) {
	Convey("Given the fixed scoring weights", t, func() {
		weights := scoring.Weights()

		Convey("Then they should match the published values", func() {
			So(weights[scoring.KeywordMentions], ShouldEqual, 0.60)
			So(weights[scoring.FollowersCount], ShouldEqual, 0.25)
			So(weights[scoring.TweetCount], ShouldEqual, 0.10)
			So(weights[scoring.AccountAge], ShouldEqual, 0.05)
		})

		Convey("Then they should sum to one", func() {
			var sum float64
			for _, w := range weights {
				sum += w
			}
			So(sum, ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Then mutating the returned map should not affect scoring", func() {
			weights[scoring.KeywordMentions] = 0
			So(scoring.Weights()[scoring.KeywordMentions], ShouldEqual, 0.60)
		})
	})

	Convey("Given the saturation caps", t, func() {
		caps := scoring.Caps()

		Convey("Then they should match the published values", func() {
			So(caps[scoring.KeywordMentions], ShouldEqual, 100.0)
			So(caps[scoring.FollowersCount], ShouldEqual, 10_000.0)
			So(caps[scoring.TweetCount], ShouldEqual, 5_000.0)
			So(caps[scoring.AccountAge], ShouldEqual, 1_095.0)
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given the normalization function", t, func() {
		Convey("Then values are divided by the cap and clamped", func() {
			So(scoring.Normalize(0, 100), ShouldEqual, 0.0)
			So(scoring.Normalize(25, 100), ShouldEqual, 0.25)
			So(scoring.Normalize(100, 100), ShouldEqual, 1.0)
			So(scoring.Normalize(1e9, 100), ShouldEqual, 1.0)
		})

		Convey("Then degenerate input collapses to zero", func() {
			So(scoring.Normalize(-5, 100), ShouldEqual, 0.0)
			So(scoring.Normalize(5, 0), ShouldEqual, 0.0)
			So(scoring.Normalize(math.NaN(), 100), ShouldEqual, 0.0)
		})
	})
}

func TestScoreFromBreakdown(t *testing.T) {
	Convey("Given explicit normalized components", t, func() {
		Convey("When each is exactly one half", func() {
			score := scoring.ScoreFromBreakdown(model.Breakdown{Mentions: 0.5, Followers: 0.5, Tweets: 0.5, AccountAge: 0.5})

			Convey("Then the score should be 500", func() {
				So(score, ShouldEqual, 500)
			})
		})

		Convey("When only mentions are saturated", func() {
			score := scoring.ScoreFromBreakdown(model.Breakdown{Mentions: 1})

			Convey("Then the score should equal the mentions weight", func() {
				So(score, ShouldEqual, 600)
			})
		})

		Convey("When components are out of range", func() {
			score := scoring.ScoreFromBreakdown(model.Breakdown{Mentions: 7, Followers: -3, Tweets: 1, AccountAge: 1})

			Convey("Then they should be clamped before weighting", func() {
				So(score, ShouldEqual, 750)
			})
		})
	})
}

func TestParseCreatedAt(t *testing.T) {
	Convey("Given upstream creation timestamps", t, func() {
		Convey("Then the v2 millisecond layout should parse", func() {
			got := scoring.ParseCreatedAt("2009-06-02T20:12:29.000Z")
			So(got.Equal(time.Date(2009, 6, 2, 20, 12, 29, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("Then plain RFC3339 should parse", func() {
			got := scoring.ParseCreatedAt("2020-01-02T03:04:05+02:00")
			So(got.Equal(time.Date(2020, 1, 2, 1, 4, 5, 0, time.UTC)), ShouldBeTrue)
			So(got.Location(), ShouldEqual, time.UTC)
		})

		Convey("Then the v1.1 layout should parse", func() {
			got := scoring.ParseCreatedAt("Wed Oct 10 20:19:24 +0000 2018")
			So(got.Equal(time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("Then empty or garbage input should yield the zero time", func() {
			So(scoring.ParseCreatedAt("").IsZero(), ShouldBeTrue)
			So(scoring.ParseCreatedAt("   ").IsZero(), ShouldBeTrue)
			So(scoring.ParseCreatedAt("last tuesday").IsZero(), ShouldBeTrue)
		})
	})
}
