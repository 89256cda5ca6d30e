// Command ingest is the Yahoo fantasy player ingestion CLI.
//
// Usage:
//
//	yahoo-ingest auth
//	yahoo-ingest scrape --start 1 --end 100000 --delay 500ms
//	yahoo-ingest clean --raw-dir /data/yahoo/raw --out /data/yahoo/inter/players.json
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/yahoo-harvest/internal/auth"
	"github.com/albapepper/yahoo-harvest/internal/config"
	"github.com/albapepper/yahoo-harvest/internal/flatten"
	"github.com/albapepper/yahoo-harvest/internal/harvest"
	"github.com/albapepper/yahoo-harvest/internal/logging"
	"github.com/albapepper/yahoo-harvest/internal/provider/yahoo"
	"github.com/albapepper/yahoo-harvest/internal/rawstore"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// cfg is loaded once per invocation by the root command's pre-run hook.
var cfg *config.Config

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel, logFormat string
	root := &cobra.Command{
		Use:          "yahoo-ingest",
		Short:        "Yahoo fantasy player ingestion CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.LogLevel
			}
			if !cmd.Flags().Changed("log-format") {
				logFormat = cfg.LogFormat
			}
			logger = logging.New(os.Stdout, logFormat, logLevel)
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Log format (text, json, tint)")

	root.AddCommand(authCmd())
	root.AddCommand(scrapeCmd())
	root.AddCommand(cleanCmd())
	return root
}

// --------------------------------------------------------------------------
// auth command
// --------------------------------------------------------------------------

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize this app with Yahoo and write the token file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				y, err := auth.NewYahoo(cfg.ClientID, cfg.ClientSecret, cfg.TokenFile, auth.WithLogger(logger))
				if err != nil {
					return err
				}
				u, err := y.AuthCodeURL()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in a browser and approve access:\n\n  %s\n\nEnter verifier: ", u)

				code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && code == "" {
					return fmt.Errorf("read verifier: %w", err)
				}
				code = strings.TrimSpace(code)
				if code == "" {
					return fmt.Errorf("verifier is required")
				}

				sess, err := y.Exchange(ctx, code)
				if err != nil {
					return err
				}
				logger.Info("Token file written", "path", cfg.TokenFile, "expires", sess.Expiry())
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// scrape command
// --------------------------------------------------------------------------

func scrapeCmd() *cobra.Command {
	var (
		start, end       int
		sport, league    string
		outDir           string
		delay            time.Duration
		maxReauth        int
		transientRetries int
		backoff          time.Duration
		proactiveRefresh bool
		skipExisting     bool
	)
	cmd := &cobra.Command{
		Use:     "scrape",
		Aliases: []string{"mine"},
		Short:   "Fetch every candidate player ID and store the raw payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				flags := cmd.Flags()
				if !flags.Changed("end") {
					end = cfg.ScanEnd
				}
				if !flags.Changed("sport") {
					sport = cfg.Sport
				}
				if !flags.Changed("league") {
					league = cfg.LeagueID
				}
				if !flags.Changed("out") {
					outDir = cfg.RawDir
				}
				if !flags.Changed("delay") {
					delay = cfg.Delay
				}
				if !flags.Changed("max-reauth") {
					maxReauth = cfg.MaxReauth
				}
				if !flags.Changed("transient-retries") {
					transientRetries = cfg.TransientRetries
				}
				if !flags.Changed("proactive-refresh") {
					proactiveRefresh = cfg.ProactiveRefresh
				}
				if end <= start {
					return fmt.Errorf("--end (%d) must be greater than --start (%d)", end, start)
				}

				authenticator, err := auth.NewYahoo(cfg.ClientID, cfg.ClientSecret, cfg.TokenFile, auth.WithLogger(logger))
				if err != nil {
					return err
				}
				sess, err := authenticator.Open(ctx)
				if err != nil {
					return fmt.Errorf("open session: %w", err)
				}

				client := yahoo.NewClient(cfg.APIBase, sport, league,
					yahoo.WithDelay(delay),
					yahoo.WithLogger(logger),
				)
				h := harvest.New(client, authenticator, rawstore.New(outDir), harvest.Options{
					Start:            start,
					End:              end,
					MaxReauth:        maxReauth,
					TransientRetries: transientRetries,
					Backoff:          backoff,
					ProactiveRefresh: proactiveRefresh,
					SkipExisting:     skipExisting,
					Delay:            delay,
				}, logger)

				begin := time.Now()
				result, _, err := h.Run(ctx, sess)
				logger.Info("Scrape finished",
					"duration", time.Since(begin).Round(time.Second),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("scrape error", "error", e)
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&start, "start", 1, "First candidate player ID")
	cmd.Flags().IntVar(&end, "end", config.DefaultScanEnd, "Stop before this player ID")
	cmd.Flags().StringVar(&sport, "sport", config.DefaultSport, "Sport code (nfl, nba, mlb, nhl)")
	cmd.Flags().StringVar(&league, "league", config.DefaultLeagueID, "League ID")
	cmd.Flags().StringVar(&outDir, "out", config.DefaultRawDir, "Directory for raw player payloads")
	cmd.Flags().DurationVar(&delay, "delay", config.DefaultDelay, "Fixed delay between requests")
	cmd.Flags().IntVar(&maxReauth, "max-reauth", config.DefaultMaxReauth, "Re-authentications allowed per player before giving up")
	cmd.Flags().IntVar(&transientRetries, "transient-retries", config.DefaultTransient, "Retries for 429 and 5xx responses")
	cmd.Flags().DurationVar(&backoff, "backoff", 2*time.Second, "Initial backoff between retries (doubles each attempt)")
	cmd.Flags().BoolVar(&proactiveRefresh, "proactive-refresh", false, "Refresh the token before each request when it has expired")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip IDs that already have a stored payload")
	return cmd
}

// --------------------------------------------------------------------------
// clean command
// --------------------------------------------------------------------------

func cleanCmd() *cobra.Command {
	var (
		rawDir    string
		out       string
		overwrite bool
		limit     int
	)
	cmd := &cobra.Command{
		Use:     "clean",
		Aliases: []string{"clean_yahoo"},
		Short:   "Flatten raw player payloads into one JSON array",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				flags := cmd.Flags()
				if !flags.Changed("raw-dir") {
					rawDir = cfg.RawDir
				}
				if !flags.Changed("out") {
					out = cfg.PlayersOut
				}
				if !flags.Changed("limit") {
					limit = cfg.FlattenLimit
				}

				begin := time.Now()
				stats, err := flatten.Run(ctx, flatten.Options{
					RawDir:    rawDir,
					Output:    out,
					Overwrite: overwrite,
					Limit:     limit,
				}, logger)
				if err != nil {
					return err
				}
				logger.Info("Clean finished",
					"duration", time.Since(begin).Round(time.Millisecond),
					"files", stats.Files, "written", stats.Written)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rawDir, "raw-dir", config.DefaultRawDir, "Directory of raw player payloads")
	cmd.Flags().StringVar(&out, "out", config.DefaultPlayersOut, "Output JSON file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", true, "Replace the output file if it exists")
	cmd.Flags().IntVar(&limit, "limit", config.DefaultFlattenCap, "Maximum raw files to read (negative reads all)")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run hands the loaded config to fn under a signal-aware context.
func run(fn func(ctx context.Context, cfg *config.Config) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, cfg)
}
