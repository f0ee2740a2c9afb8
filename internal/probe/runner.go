package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/okian/influence/internal/domain/badge"
	"github.com/okian/influence/internal/domain/scoring"
	"github.com/okian/influence/internal/domain/types"
	"github.com/okian/influence/pkg/logger"
)

const (
	directoryPermission = 0o755
	filePermission      = 0o644
	workerChanFactor    = 2
)

// Config controls a batch run.
type Config struct {
	Workers   int    // concurrent users in flight
	OutputDir string // badges are saved here when set
	SkipBadge bool   // score only
}

// Result is the outcome for one username.
type Result struct {
	Username  string
	Score     types.ScoreResponse
	BadgePath string
	Err       error
}

// Stats summarizes a batch run.
type Stats struct {
	Requested int
	Scored    int
	Badges    int
	Failed    int
	Duration  time.Duration
}

// Run scores every username and, unless disabled, fetches and verifies its
// badge. Results keep the input order. The service must be healthy first.
func (c *Client) Run(ctx context.Context, cfg Config, usernames []string) ([]Result, Stats, error) {
	stats := Stats{Requested: len(usernames)}
	if len(usernames) == 0 {
		return nil, stats, nil
	}
	if err := c.Health(ctx); err != nil {
		return nil, stats, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(usernames) {
		workers = len(usernames)
	}

	start := time.Now()
	results := make([]Result, len(usernames))
	jobs := make(chan int, workers*workerChanFactor)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.runOne(ctx, cfg, usernames[i])
			}
		}()
	}

feed:
	for i := range usernames {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(usernames); j++ {
				results[j] = Result{Username: usernames[j], Err: ctx.Err()}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	stats.Duration = time.Since(start)
	for _, r := range results {
		if r.Score.Username != "" {
			stats.Scored++
		}
		switch {
		case r.Err != nil:
			stats.Failed++
		case !cfg.SkipBadge:
			stats.Badges++
		}
	}
	if stats.Scored == 0 {
		return results, stats, fmt.Errorf("all %d users failed: %w", stats.Requested, firstErr(results))
	}
	return results, stats, nil
}

func (c *Client) runOne(ctx context.Context, cfg Config, username string) Result {
	res := Result{Username: username}
	score, err := c.Score(ctx, username)
	if err != nil {
		res.Err = fmt.Errorf("score %s: %w", username, err)
		c.logger.Warn(ctx, "score failed", logger.String("username", username), logger.Error(err))
		return res
	}
	res.Score = score
	if err := VerifyScore(score); err != nil {
		res.Err = err
		return res
	}
	if cfg.SkipBadge {
		return res
	}

	img, err := c.Badge(ctx, score.Username, score.Score)
	if err != nil {
		res.Err = fmt.Errorf("badge %s: %w", username, err)
		c.logger.Warn(ctx, "badge failed", logger.String("username", username), logger.Error(err))
		return res
	}
	if err := VerifyBadge(img); err != nil {
		res.Err = fmt.Errorf("badge %s: %w", username, err)
		return res
	}
	if cfg.OutputDir != "" {
		path, err := SaveBadge(cfg.OutputDir, score.Username, img)
		if err != nil {
			res.Err = err
			return res
		}
		res.BadgePath = path
		c.logger.Info(ctx, "badge saved", logger.String("username", username), logger.String("path", path))
	}
	return res
}

// VerifyScore checks the score and every breakdown component are in range.
func VerifyScore(s types.ScoreResponse) error {
	if s.Score < 0 || s.Score > scoring.MaxScore {
		return fmt.Errorf("%w: %d", ErrScoreRange, s.Score)
	}
	b := s.Breakdown
	for name, v := range map[string]float64{
		"mentions": b.Mentions, "followers": b.Followers, "tweets": b.Tweets, "accountAge": b.AccountAge,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v", ErrScoreRange, name, v)
		}
	}
	return nil
}

// VerifyBadge checks data decodes as a PNG of the badge dimensions.
func VerifyBadge(data []byte) error {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotPNG, err)
	}
	if cfg.Width != badge.Width || cfg.Height != badge.Height {
		return fmt.Errorf("%w: %dx%d", ErrBadgeSize, cfg.Width, cfg.Height)
	}
	return nil
}

// SaveBadge writes data to dir/<username>_badge.png and returns the path.
func SaveBadge(dir, username string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := strings.TrimPrefix(username, "@") + "_badge.png"
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return "", fmt.Errorf("write badge: %w", err)
	}
	return path, nil
}

func firstErr(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return errors.New("no result")
}
