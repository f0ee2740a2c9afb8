// Package types contains the JSON shapes served by the HTTP API.
package types

import "github.com/okian/influence/internal/domain/model"

// ScoreResponse is the body of GET /api/score/{username}.
type ScoreResponse struct {
	Score         int               `json:"score"`
	MentionsCount int               `json:"mentionsCount"`
	Followers     int               `json:"followers"`
	Username      string            `json:"username"`
	AvatarURL     string            `json:"avatarUrl,omitempty"`
	Breakdown     BreakdownResponse `json:"breakdown"`
}

// BreakdownResponse exposes the normalized components, each in [0,1].
type BreakdownResponse struct {
	Mentions       float64 `json:"mentions"`
	Followers      float64 `json:"followers"`
	Tweets         float64 `json:"tweets"`
	AccountAge     float64 `json:"accountAge"`
	AccountAgeDays int     `json:"accountAgeDays"`
}

// ErrorResponse is the JSON error body. Code is a stable machine-readable kind.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// FromResult converts a domain result into its wire shape.
func FromResult(r model.ScoreResult) ScoreResponse {
	return ScoreResponse{
		Score:         r.Score,
		MentionsCount: r.MentionsCount,
		Followers:     r.FollowersCount,
		Username:      r.Username,
		AvatarURL:     r.AvatarURL,
		Breakdown: BreakdownResponse{
			Mentions:       r.Breakdown.Mentions,
			Followers:      r.Breakdown.Followers,
			Tweets:         r.Breakdown.Tweets,
			AccountAge:     r.Breakdown.AccountAge,
			AccountAgeDays: r.Breakdown.AccountAgeDays,
		},
	}
}
