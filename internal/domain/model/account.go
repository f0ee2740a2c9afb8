// Package model contains domain models passed between layers.
package model

import "time"

// AccountMetrics are the raw per-account inputs to scoring. A zero CreatedAt
// means the upstream did not supply a usable creation timestamp.
type AccountMetrics struct {
	FollowersCount int
	TweetCount     int
	CreatedAt      time.Time
}

// Profile is what the data gateway resolves a username to.
type Profile struct {
	ID        string
	Username  string
	Name      string
	AvatarURL string
	Metrics   AccountMetrics
}

// Breakdown holds the normalized components that produced a score.
type Breakdown struct {
	Mentions       float64
	Followers      float64
	Tweets         float64
	AccountAge     float64
	AccountAgeDays int
}

// ScoreResult is built once per request and never mutated afterwards.
type ScoreResult struct {
	Score          int
	MentionsCount  int
	FollowersCount int
	Username       string
	AvatarURL      string
	Breakdown      Breakdown
}
