package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/okian/influence/internal/domain/scoring"
	"github.com/okian/influence/internal/probe"
	"github.com/okian/influence/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultWorkers = 2 // multiplier for runtime.NumCPU()

var (
	baseURL string
	timeout time.Duration
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "influencectl",
		Short:         "Query a running influence service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithFormat(cmd.ErrOrStderr(), "text"); err != nil {
				return err
			}
			if verbose {
				return logger.SetLevelString("debug")
			}
			return logger.SetLevelString("warn")
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "url", probe.DefaultBaseURL, "base URL of the service")
	root.PersistentFlags().DurationVar(&timeout, "timeout", probe.DefaultTimeout, "HTTP request timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(scoreCmd())
	root.AddCommand(badgeCmd())
	root.AddCommand(batchCmd())

	return root
}

func newClient() *probe.Client {
	return probe.NewClient(
		probe.WithBaseURL(baseURL),
		probe.WithTimeout(timeout),
		probe.WithLogger(logger.Named("influencectl")),
	)
}

func scoreCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "score <username>",
		Short: "Print the influence score of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), cmd.OutOrStdout(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func badgeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "badge <username> [score]",
		Short: "Download the PNG badge, computing the score first when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var score *int
			if len(args) == 2 {
				n, err := parseScore(args[1])
				if err != nil {
					return err
				}
				score = &n
			}
			return runBadge(cmd.Context(), cmd.OutOrStdout(), args[0], score, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to save the badge in")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		workers   int
		output    string
		skipBadge bool
	)

	cmd := &cobra.Command{
		Use:   "batch <username>...",
		Short: "Score many accounts concurrently and save their badges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := probe.Config{Workers: workers, OutputDir: output, SkipBadge: skipBadge}
			return runBatch(cmd.Context(), cmd.OutOrStdout(), cfg, args)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent workers")
	cmd.Flags().StringVarP(&output, "output", "o", "", "directory to save badges in (default: do not save)")
	cmd.Flags().BoolVar(&skipBadge, "skip-badge", false, "only compute scores")
	return cmd
}

func runScore(ctx context.Context, out io.Writer, username string, jsonOutput bool) error {
	s, err := newClient().Score(ctx, username)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "username\t@%s\n", s.Username)
	fmt.Fprintf(tw, "score\t%d\n", s.Score)
	fmt.Fprintf(tw, "mentions\t%d\t%.3f\n", s.MentionsCount, s.Breakdown.Mentions)
	fmt.Fprintf(tw, "followers\t%d\t%.3f\n", s.Followers, s.Breakdown.Followers)
	fmt.Fprintf(tw, "tweets\t\t%.3f\n", s.Breakdown.Tweets)
	fmt.Fprintf(tw, "account age\t%dd\t%.3f\n", s.Breakdown.AccountAgeDays, s.Breakdown.AccountAge)
	return tw.Flush()
}

// parseScore accepts an integer badge score in 0..MaxScore.
func parseScore(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", arg, err)
	}
	if n < 0 || n > scoring.MaxScore {
		return 0, fmt.Errorf("invalid score %d: must be between 0 and %d", n, scoring.MaxScore)
	}
	return n, nil
}

// runBadge saves the badge of username. A nil score is computed first.
func runBadge(ctx context.Context, out io.Writer, username string, score *int, dir string) error {
	c := newClient()
	if score == nil {
		s, err := c.Score(ctx, username)
		if err != nil {
			return err
		}
		username, score = s.Username, &s.Score
	}
	img, err := c.Badge(ctx, username, *score)
	if err != nil {
		return err
	}
	path, err := probe.SaveBadge(dir, username, img)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func runBatch(ctx context.Context, out io.Writer, cfg probe.Config, usernames []string) error {
	results, stats, err := newClient().Run(ctx, cfg, usernames)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tSCORE\tBADGE\tERROR")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Username, r.Score.Score, r.BadgePath, errText)
	}
	if flushErr := tw.Flush(); flushErr != nil {
		return flushErr
	}
	fmt.Fprintf(out, "\n%d requested, %d scored, %d badges, %d failed in %s\n",
		stats.Requested, stats.Scored, stats.Badges, stats.Failed, stats.Duration.Round(time.Millisecond))
	return err
}
