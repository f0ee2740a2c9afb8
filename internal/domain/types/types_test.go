package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/influence/internal/domain/model"
	types "github.com/okian/influence/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFromResult(t *testing.T) {
	Convey("Given a computed score result", t, func() {
		result := model.ScoreResult{
			Score:          500,
			MentionsCount:  50,
			FollowersCount: 5000,
			Username:       "gopher",
			AvatarURL:      "https://pbs.twimg.com/profile_images/1/a_normal.jpg",
			Breakdown: model.Breakdown{
				Mentions: 0.5, Followers: 0.5, Tweets: 0.5, AccountAge: 0.5, AccountAgeDays: 547,
			},
		}

		Convey("When encoding its wire shape", func() {
			raw, err := json.Marshal(types.FromResult(result))
			So(err, ShouldBeNil)

			var body map[string]any
			So(json.Unmarshal(raw, &body), ShouldBeNil)

			Convey("Then it should use the public field names", func() {
				So(body["score"], ShouldEqual, 500.0)
				So(body["mentionsCount"], ShouldEqual, 50.0)
				So(body["followers"], ShouldEqual, 5000.0)
				So(body["username"], ShouldEqual, "gopher")
				So(body["avatarUrl"], ShouldEqual, result.AvatarURL)
				breakdown, ok := body["breakdown"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(breakdown["accountAgeDays"], ShouldEqual, 547.0)
			})
		})

		Convey("When the avatar URL is absent", func() {
			result.AvatarURL = ""
			raw, err := json.Marshal(types.FromResult(result))
			So(err, ShouldBeNil)

			Convey("Then avatarUrl should be omitted", func() {
				So(string(raw), ShouldNotContainSubstring, "avatarUrl")
			})
		})
	})
}
