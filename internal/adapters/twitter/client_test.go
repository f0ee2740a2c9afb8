package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{WithBaseURL(srv.URL), WithBearerToken("tok"), WithHTTPClient(srv.Client())}
	return NewClient(append(base, opts...)...)
}

func TestClient_LookupUser(t *testing.T) {
	Convey("Given an upstream serving a user", t, func() {
		var gotAuth, gotPath, gotFields string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			gotFields = r.URL.Query().Get("user.fields")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"12","name":"Jack","username":"jack",
				"created_at":"2006-03-21T20:50:14.000Z",
				"profile_image_url":"https://pbs.twimg.com/profile_images/1/a_normal.jpg",
				"public_metrics":{"followers_count":5000,"tweet_count":2500}}}`))
		}))
		defer srv.Close()

		profile, err := newTestClient(srv).LookupUser(context.Background(), "jack")

		Convey("Then the profile should be decoded", func() {
			So(err, ShouldBeNil)
			So(profile.ID, ShouldEqual, "12")
			So(profile.Username, ShouldEqual, "jack")
			So(profile.AvatarURL, ShouldEqual, "https://pbs.twimg.com/profile_images/1/a_normal.jpg")
			So(profile.Metrics.FollowersCount, ShouldEqual, 5000)
			So(profile.Metrics.TweetCount, ShouldEqual, 2500)
			So(profile.Metrics.CreatedAt.Equal(time.Date(2006, 3, 21, 20, 50, 14, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("Then the request should be authenticated and ask for the needed fields", func() {
			So(gotAuth, ShouldEqual, "Bearer tok")
			So(gotPath, ShouldEqual, "/users/by/username/jack")
			So(gotFields, ShouldEqual, "public_metrics,created_at,profile_image_url")
		})
	})

	Convey("Given an upstream rejecting the lookup", t, func() {
		cases := []struct {
			name    string
			status  int
			body    string
			message string
			kind    error
		}{
			{"with an error detail", http.StatusNotFound, `{"errors":[{"detail":"Could not find user with username: [ghost]."}]}`, "Could not find user with username: [ghost].", ErrUpstreamNotFound},
			{"with JSON lacking a detail", http.StatusTooManyRequests, `{"title":"Too Many Requests"}`, msgLookupFailed, ErrUpstreamRateLimited},
			{"with a non-JSON body", http.StatusServiceUnavailable, `<html>down</html>`, "upstream connection error: 503", ErrUpstream},
		}

		for _, tc := range cases {
			tc := tc
			Convey("When it responds "+tc.name, func() {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tc.status)
					_, _ = w.Write([]byte(tc.body))
				}))
				defer srv.Close()

				_, err := newTestClient(srv).LookupUser(context.Background(), "ghost")

				Convey("Then the status and message should be carried", func() {
					upErr, ok := IsUpstream(err)
					So(ok, ShouldBeTrue)
					So(upErr.Status, ShouldEqual, tc.status)
					So(upErr.Message, ShouldEqual, tc.message)
					So(errors.Is(err, tc.kind), ShouldBeTrue)
				})
			})
		}
	})

	Convey("Given an upstream that answers 200 without data", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors":[{"detail":"User has been suspended: [x]."}]}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv).LookupUser(context.Background(), "x")

		Convey("Then it should be reported as not found with the detail", func() {
			upErr, ok := IsUpstream(err)
			So(ok, ShouldBeTrue)
			So(upErr.Status, ShouldEqual, http.StatusNotFound)
			So(upErr.Message, ShouldEqual, "User has been suspended: [x].")
		})
	})

	Convey("Given an unreachable upstream", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := NewClient(WithBaseURL(url), WithTimeout(time.Second)).LookupUser(context.Background(), "jack")

		Convey("Then a bad gateway upstream error should be returned", func() {
			upErr, ok := IsUpstream(err)
			So(ok, ShouldBeTrue)
			So(upErr.Status, ShouldEqual, http.StatusBadGateway)
			So(errors.Is(err, ErrUpstream), ShouldBeTrue)
		})
	})

	Convey("Given a user without a creation time", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"1","username":"new","public_metrics":{}}}`))
		}))
		defer srv.Close()

		profile, err := newTestClient(srv).LookupUser(context.Background(), "new")

		Convey("Then the creation time should be zero", func() {
			So(err, ShouldBeNil)
			So(profile.Metrics.CreatedAt.IsZero(), ShouldBeTrue)
		})
	})
}

func TestClient_CountMentions(t *testing.T) {
	Convey("Given an upstream search endpoint", t, func() {
		var gotQuery, gotMax, gotPath string
		status := http.StatusOK
		body := `{"meta":{"result_count":42}}`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.Query().Get("query")
			gotMax = r.URL.Query().Get("max_results")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		defer srv.Close()
		c := newTestClient(srv, WithKeywords("alpha", " ", "beta"))

		Convey("When the search succeeds", func() {
			n, err := c.CountMentions(context.Background(), "jack")

			Convey("Then the result count should be returned", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 42)
				So(gotPath, ShouldEqual, "/tweets/search/recent")
				So(gotQuery, ShouldEqual, "(alpha OR beta) from:jack")
				So(gotMax, ShouldEqual, "100")
			})
		})

		Convey("When the response has no meta", func() {
			body = `{}`
			n, err := c.CountMentions(context.Background(), "jack")

			Convey("Then the count should be zero", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the search is rejected", func() {
			status = http.StatusTooManyRequests
			_, err := c.CountMentions(context.Background(), "jack")

			Convey("Then a search failure should be returned", func() {
				So(errors.Is(err, ErrSearchFailed), ShouldBeTrue)
			})
		})

		Convey("When the body is not JSON", func() {
			body = `nope`
			_, err := c.CountMentions(context.Background(), "jack")

			Convey("Then a search failure should be returned", func() {
				So(errors.Is(err, ErrSearchFailed), ShouldBeTrue)
				So(errors.Is(err, ErrDecode), ShouldBeTrue)
			})
		})
	})
}

func TestQueryFor(t *testing.T) {
	Convey("Given the default keyword set", t, func() {
		q := QueryFor(DefaultKeywords, "someone")

		Convey("Then the query should OR the keywords and restrict the author", func() {
			So(q, ShouldEqual, "(مشروعنا OR اسم_مشروعك_الفريد OR أفضل_تطبيق) from:someone")
		})
	})

	Convey("Given a client with default options", t, func() {
		c := NewClient()

		Convey("Then mutating the returned keywords should not affect the client", func() {
			kw := c.Keywords()
			kw[0] = "changed"
			So(c.Keywords()[0], ShouldEqual, DefaultKeywords[0])
		})
	})
}
