package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"intake/internal/app"
	"intake/internal/config"
	"intake/internal/secret"
	"intake/internal/service"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Step flags
	sourceName string
	dateFlag   string
	outputPath string
	inputPath  string
	tableName  string
	limit      int
	asJSON     bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Daily ingestion of NOAA greenhouse gas measurements",
	Long: `intake fetches raw measurement files, structures them with a per-source
schema descriptor, writes a date-partitioned parquet dataset and bulk
loads each partition into a relational table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ApplyEnv(os.LookupEnv)
		if err := cfg.ResolveSecrets(secret.Default()); err != nil {
			logger.Warn("secret lookup failed", zap.Error(err))
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Fetch a source and overwrite its partition for one day",
	RunE:  runExtract,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace a source's table with the partition of one day",
	RunE:  runLoad,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract then load one source for one day",
	RunE:  runWorkflow,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run every configured source on the configured schedule",
	Long: `Blocks and fires one workflow per configured source on the cron schedule
(default @daily, UTC). Each scheduled run covers the previous day.
Sources that read a local file also run when that file changes.
SIGINT or SIGTERM stops scheduling and waits for in-flight runs.`,
	RunE: runSchedule,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the known schema descriptors",
	RunE:  listSources,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	RunE:  showHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{extractCmd, loadCmd, runCmd} {
		cmd.Flags().StringVarP(&sourceName, "source", "s", "", "Source descriptor name")
		cmd.Flags().StringVarP(&dateFlag, "date", "d", "", "Execution date (YYYY-MM-DD, default today UTC)")
		_ = cmd.MarkFlagRequired("source")
	}
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Partition path (default <data_home>/<source>/y=/m=/d=)")
	loadCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Partition path (default <data_home>/<source>/y=/m=/d=)")
	loadCmd.Flags().StringVarP(&tableName, "table", "t", "", "Target table (default the source's table)")

	historyCmd.Flags().StringVarP(&sourceName, "source", "s", "", "Only runs of this source")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	historyCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	sourcesCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	rootCmd.AddCommand(extractCmd, loadCmd, runCmd, scheduleCmd, sourcesCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("PLANET_PULSE_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "intake.yml"
	}
	return filepath.Join(home, ".planet-pulse", "intake.yml")
}

// parseDate reads --date, defaulting to today in UTC.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// withApp starts the app, runs fn and shuts down. ctx is cancelled on
// SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)
	if err := a.Startup(ctx); err != nil {
		return err
	}
	defer a.Shutdown()
	return fn(ctx, a)
}

// ── Steps ──────────────────────────────────────────────────

func runExtract(cmd *cobra.Command, args []string) error {
	day, err := parseDate(dateFlag)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		res, err := a.Pipeline().Extract(ctx, sourceName, day, service.StepOptions{Path: outputPath})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s (%d lines, %d partitions, %s)\n",
			res.RowsWritten, res.Path, res.LinesRead, res.Partitions, res.Duration.Round(time.Millisecond))
		return nil
	})
}

func runLoad(cmd *cobra.Command, args []string) error {
	day, err := parseDate(dateFlag)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		res, err := a.Pipeline().Load(ctx, sourceName, day, service.StepOptions{Path: inputPath, Table: tableName})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows from %s (%s)\n",
			res.RowsWritten, res.Path, res.Duration.Round(time.Millisecond))
		return nil
	})
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	day, err := parseDate(dateFlag)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Pipeline().Run(ctx, sourceName, day); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s done\n", service.NewWorkflow(sourceName).ID(), day.Format(time.DateOnly))
		return nil
	})
}

func runSchedule(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		return a.Schedule(ctx)
	})
}

// ── Listings ───────────────────────────────────────────────

func listSources(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		views, err := a.Sources()
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, views)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULED\tTABLE\tCOLUMNS\tLOCATION")
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\n", v.Name, v.Scheduled, v.Table, len(v.Columns), v.Location)
		}
		return w.Flush()
	})
}

func showHistory(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		runs, err := a.History(sourceName, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, runs)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSOURCE\tSTEP\tDATE\tSTATUS\tROWS\tERROR")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.StartedAt.Local().Format(time.DateTime), r.Source, r.Step,
				r.ExecDate.Format(time.DateOnly), r.Status, r.Rows, oneLine(r.Error))
		}
		return w.Flush()
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// oneLine flattens s and caps it at 80 runes.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return s
}
