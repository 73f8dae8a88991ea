// Command analyze runs a video analysis from the terminal, with the same
// admission, billing and ledger as the API server.
//
//	analyze https://youtu.be/dQw4w9WgXcQ "List the key moments" --enable-chunking
//	analyze spend --user <id>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/video-insights-api/internal/app"
	"github.com/Shimizu-Technology/video-insights-api/internal/config"
	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

var version = "dev"

type analyzeFlags struct {
	enableChunking  bool
	segmentDuration int
	maxWorkers      int
	output          string
	userID          string
	verbose         bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not read .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f analyzeFlags

	root := &cobra.Command{
		Use:     "analyze <youtube-url> <prompt>",
		Short:   "Analyze a YouTube video with Gemini within the daily budget",
		Version: version,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(f.output); err != nil {
				return err
			}
			if !f.verbose {
				log.SetOutput(io.Discard)
			}

			in := models.AnalyzeRequest{
				YouTubeURL:     args[0],
				Prompt:         args[1],
				EnableChunking: f.enableChunking,
			}
			if cmd.Flags().Changed("segment-duration") {
				in.SegmentDuration = &f.segmentDuration
			}
			if cmd.Flags().Changed("max-workers") {
				in.MaxConcurrency = &f.maxWorkers
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				resp, err := a.Analysis.Analyze(ctx, requesterFor(f.userID), in)
				if werr := writeAnalysis(cmd.OutOrStdout(), f.output, resp); werr != nil {
					return werr
				}
				return err
			})
		},
	}
	root.SilenceUsage = true

	root.Flags().BoolVar(&f.enableChunking, "enable-chunking", false, "split long videos into segments analyzed concurrently")
	root.Flags().IntVar(&f.segmentDuration, "segment-duration", 0, "segment length in seconds (default from DEFAULT_SEGMENT_SECONDS)")
	root.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "maximum concurrent segment calls (default from DEFAULT_CONCURRENCY)")
	root.PersistentFlags().StringVarP(&f.output, "output", "o", "text", "output format: text, json or yaml")
	root.PersistentFlags().StringVar(&f.userID, "user", "", "user ID whose daily budget is charged")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "show progress logs")

	root.AddCommand(newSpendCmd(&f))
	return root
}

func newSpendCmd(f *analyzeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "spend",
		Short: "Show today's spend against the daily budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(f.output); err != nil {
				return err
			}
			if !f.verbose {
				log.SetOutput(io.Discard)
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				snap, err := a.Budget.Snapshot(ctx, requesterFor(f.userID))
				if err != nil {
					return err
				}
				return writeSpend(cmd.OutOrStdout(), f.output, snap)
			})
		},
	}
}

// withApp loads configuration, builds the stack and runs fn with a context
// that is cancelled on Ctrl-C.
func withApp(parent context.Context, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func requesterFor(userID string) models.Requester {
	session := "cli"
	r := models.Requester{SessionID: &session}
	if userID != "" {
		r.UserID = &userID
	}
	return r
}
