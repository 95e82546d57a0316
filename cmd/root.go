package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/autoflip/internal/config"
	"github.com/andresmejia3/autoflip/internal/logging"
	"github.com/andresmejia3/autoflip/internal/planner"
	"github.com/andresmejia3/autoflip/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options holds the analysis flags.
type Options struct {
	InputPath   string
	OutputPath  string
	AspectRatio string
	SampleRate  int
	DebugFrames string
	Save        bool
	Verbose     bool
}

var (
	// DB is the database connection shared by subcommands. It is nil unless a command needs it.
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	cfg    *config.Config
	logger = zap.NewNop()
)

var analyzeOpts Options

// Version is the application version.
const Version = "0.1.0"

// needsDB marks commands that cannot run without a database.
const needsDB = "needs-db"

// unlessReportFile as the needsDB value skips the connection when the first
// argument is a report file on disk.
const unlessReportFile = "unless-report-file"

var rootCmd = &cobra.Command{
	Use:   "autoflip <input_video> <output_json>",
	Short: "Salience-aware video reframing analysis",
	Long: "Detects faces, body poses and hands on sampled frames, plans a crop window for the target\n" +
		"aspect ratio on each of them and interpolates the crop for every frame in between.\n" +
		"The result is written as a JSON analysis report.",
	Version: Version, // This enables the --version flag
	Args:    cobra.ExactArgs(2),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		level := cfg.LogLevel
		if analyzeOpts.Verbose {
			level = "debug"
		}
		if logger, err = logging.New(level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}

		if !commandNeedsDB(cmd, args) {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		return connectDB(cmd.Context())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		analyzeOpts.InputPath = args[0]
		analyzeOpts.OutputPath = args[1]
		return runAnalyze(cmd.Context(), analyzeOpts)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
		_ = logger.Sync()
	},
}

// commandNeedsDB reports whether cmd must hold a connection before it runs. The analysis
// itself connects on its own after validating its arguments.
func commandNeedsDB(cmd *cobra.Command, args []string) bool {
	switch cmd.Annotations[needsDB] {
	case "":
		return false
	case unlessReportFile:
		return len(args) == 0 || !isReportFile(args[0])
	}
	return true
}

// connectDB opens the shared store once.
func connectDB(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	// If no flag was provided, try to build the connection string from the environment
	if dbURL == "" {
		if dbURL = cfg.DatabaseURL(); dbURL == "" {
			// Fallback to local default if no env vars are present
			dbURL = "postgres://localhost:5432/autoflip"
		}
	}

	var err error
	DB, err = store.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: built from POSTGRES_* or postgres://localhost:5432/autoflip)")

	rootCmd.Flags().StringVarP(&analyzeOpts.AspectRatio, "aspect-ratio", "a", planner.DefaultAspectRatio,
		fmt.Sprintf("Target aspect ratio {%s}", strings.Join(planner.AspectRatioLabels(), "|")))
	rootCmd.Flags().IntVarP(&analyzeOpts.SampleRate, "sample-rate", "s", 30, "Number of frames to sample for analysis")
	rootCmd.Flags().StringVar(&analyzeOpts.DebugFrames, "debug-frames", "", "Directory to write sampled frames with detections and crop drawn")
	rootCmd.Flags().BoolVar(&analyzeOpts.Save, "save", false, "Also save the analysis to PostgreSQL")
	rootCmd.Flags().BoolVar(&analyzeOpts.Verbose, "verbose", false, "Log per-frame detector diagnostics")
}
