package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hoard/internal/app"
	"hoard/internal/config"
	"hoard/internal/core"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a HoardApp. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.HoardApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewHoardApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, and also
// flips the cooperative cancel flag so in-flight items finish cleanly.
func signalContext(a *app.HoardApp) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		fmt.Fprintln(os.Stderr, "interrupted, finishing in-flight items...")
		a.Control().Cancel()
		cancel()
	}()
	return ctx, cancel
}

var rootCmd = &cobra.Command{
	Use:   "hoard",
	Short: "Personal media archival tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Download Dir: %s\n", cfg.Downloads.DownloadDir)
		fmt.Printf("Workers:      %d\n", cfg.Downloads.Workers)
		fmt.Printf("Mirror:       %s\n", cfg.Mirror.Type)
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download [urls...]",
	Short: "Queue URLs and download everything pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		listFile, _ := cmd.Flags().GetString("list")
		destDir, _ := cmd.Flags().GetString("dest")
		queueOnly, _ := cmd.Flags().GetBool("queue-only")

		a, err := newApp("Download")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext(a)
		defer cancel()

		if len(args) > 0 || listFile != "" {
			summary, err := a.Enqueue(ctx, args, listFile, destDir)
			if err != nil {
				a.MarkError()
				return fmt.Errorf("queueing: %w", err)
			}
			fmt.Printf("Queued %d candidates from %d sources (%d errors)\n",
				summary.Enqueued, summary.Sources, summary.Errors)
		}

		if queueOnly {
			return nil
		}

		progress := func(processed int, succeeded bool) {
			if processed%10 == 0 {
				fmt.Printf("  ...%d items processed\n", processed)
			}
		}

		summary, err := a.Download(ctx, progress)
		if err != nil {
			a.MarkError()
			return fmt.Errorf("downloading: %w", err)
		}

		fmt.Printf("Processed %d: %d downloaded, %d duplicates, %d skipped, %d failed\n",
			summary.Processed, summary.Succeeded, summary.Duplicates, summary.Skipped, summary.Failed)
		for _, f := range summary.Failures {
			fmt.Printf("  failed: %s (%s)\n", f.MediaURL, f.Reason)
		}
		if summary.MirrorFailures > 0 {
			fmt.Printf("  %d mirror uploads failed (see log)\n", summary.MirrorFailures)
		}
		if summary.Cancelled {
			fmt.Println("Cancelled; remaining items stay queued.")
		}
		if summary.Failed > 0 {
			a.MarkError()
		}
		return nil
	},
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the pending work queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("QueueList")
		if err != nil {
			return err
		}
		defer a.Close()

		items := a.QueueItems()
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for i, c := range items {
			fmt.Printf("%4d  %s\n", i+1, c.MediaURL)
		}
		fmt.Printf("%d pending\n", len(items))
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all pending items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("QueueClear")
		if err != nil {
			return err
		}
		defer a.Close()

		n := len(a.QueueItems())
		if err := a.ClearQueue(cmd.Context()); err != nil {
			a.MarkError()
			return err
		}
		fmt.Printf("Cleared %d items.\n", n)
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the content hash index",
}

var indexScanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Record every file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("IndexScan")
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.ScanIndex(cmd.Context(), args[0], func(added int) {
			fmt.Printf("  ...%d files indexed\n", added)
		})
		if err != nil {
			a.MarkError()
			return fmt.Errorf("scanning %s: %w", args[0], err)
		}
		fmt.Printf("Indexed %d new files.\n", added)
		return nil
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("IndexStats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats := a.IndexStats()
		fmt.Printf("Tracked files: %d\n", stats.TotalFiles)
		fmt.Printf("Total size:    %d bytes\n", stats.TotalSizeBytes)
		fmt.Printf("Videos:        %d\n", stats.VideoCount)
		fmt.Printf("Images:        %d\n", stats.ImageCount)
		fmt.Printf("Other:         %d\n", stats.OtherCount)
		return nil
	},
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every tracked file still exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("IndexVerify")
		if err != nil {
			return err
		}
		defer a.Close()

		missing := a.VerifyIndex()
		if missing == 0 {
			fmt.Println("All tracked files present.")
		} else {
			fmt.Printf("%d tracked files missing (run 'hoard index prune' to drop them).\n", missing)
		}
		return nil
	},
}

var indexPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop entries whose files no longer exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("IndexPrune")
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.PruneIndex(cmd.Context())
		if err != nil {
			a.MarkError()
			return err
		}
		fmt.Printf("Removed %d stale entries.\n", removed)
		return nil
	},
}

var indexDupesCmd = &cobra.Command{
	Use:   "dupes <dir>",
	Short: "List groups of byte-identical files under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("IndexDupes")
		if err != nil {
			return err
		}
		defer a.Close()

		groups, err := a.FindDuplicates(args[0])
		if err != nil {
			a.MarkError()
			return fmt.Errorf("scanning %s: %w", args[0], err)
		}
		if len(groups) == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}
		for digest, paths := range groups {
			fmt.Printf("%s:\n", digest[:12])
			for _, p := range paths {
				fmt.Printf("  %s\n", p)
			}
		}
		fmt.Printf("%d duplicate groups.\n", len(groups))
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep <source-dir> <dest-dir>",
	Short: "Move duplicate files out of a directory tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		exts, _ := cmd.Flags().GetStringSlice("ext")
		minSize, _ := cmd.Flags().GetInt64("min-size")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		ignoreHidden, _ := cmd.Flags().GetBool("ignore-hidden")

		a, err := newApp("Sweep")
		if err != nil {
			return err
		}
		defer a.Close()

		_, cancel := signalContext(a)
		defer cancel()

		var filters *core.SweepFilters
		if len(exts) > 0 || minSize > 0 || len(exclude) > 0 || ignoreHidden {
			filters = &core.SweepFilters{
				IncludeExts:       exts,
				MinSize:           minSize,
				ExcludeSubstrings: exclude,
				IgnoreHidden:      ignoreHidden,
			}
		}

		progress := func(stage core.SweepStage, done, total int) {
			fmt.Printf("  [%s] %d/%d\n", stage, done, total)
		}

		summary, err := a.Sweep(cmd.Context(), args[0], args[1], filters, progress)
		if err != nil {
			a.MarkError()
			return fmt.Errorf("sweeping: %w", err)
		}

		fmt.Printf("Scanned %d files, %d duplicate groups.\n", summary.Counted, summary.Groups)
		fmt.Printf("Moved %d of %d planned (%d failures), removed %d empty dirs.\n",
			summary.Moved, summary.PlannedMoves, summary.MoveFailures, summary.DirsRemoved)
		if summary.Cancelled {
			fmt.Println("Cancelled before completion.")
		}
		if summary.MoveFailures > 0 {
			a.MarkError()
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage download history",
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("HistoryStats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats := a.HistoryStats()
		fmt.Printf("Reddit:   %d sources, %d posts\n", stats.RedditSources, stats.RedditPosts)
		fmt.Printf("Twitter:  %d users, %d tweets\n", stats.TwitterUsers, stats.TwitterTweets)
		fmt.Printf("Websites: %d sites, %d items\n", stats.Websites, stats.WebsiteItems)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [source]",
	Short: "Clear history for one source, or everything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nsFlag, _ := cmd.Flags().GetString("namespace")

		ns := core.Namespace(nsFlag)
		switch ns {
		case core.NamespaceReddit, core.NamespaceTwitter, core.NamespaceWebsites:
		default:
			return fmt.Errorf("unknown namespace %q", nsFlag)
		}

		a, err := newApp("HistoryClear")
		if err != nil {
			return err
		}
		defer a.Close()

		sourceKey := ""
		if len(args) == 1 {
			sourceKey = args[0]
		}
		if err := a.ClearHistory(cmd.Context(), ns, sourceKey); err != nil {
			a.MarkError()
			return err
		}
		if sourceKey == "" {
			fmt.Println("Cleared all history.")
		} else {
			fmt.Printf("Cleared history for %s/%s.\n", ns, sourceKey)
		}
		return nil
	},
}

// mirror command
var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Manage the mirror backend",
}

var mirrorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the mirror is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MirrorCheck")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateMirror(cmd.Context()); err != nil {
			a.MarkError()
			return err
		}
		fmt.Println("Mirror is reachable.")
		return nil
	},
}

var mirrorKeysInitCmd = &cobra.Command{
	Use:   "keys-init",
	Short: "Generate the mirror encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MirrorKeysInit")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}

		if err := a.SetupKeys(passphrase); err != nil {
			a.MarkError()
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Println("Key pair generated.")
		return nil
	},
}

// readPassphrase prompts twice on the terminal and checks the entries match.
func readPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	return string(first), nil
}

// runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("Runs")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			finished := "-"
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%4d  %-12s %-8s %s  processed=%d ok=%d dup=%d failed=%d\n",
				r.ID, r.Operation, r.Status, finished,
				r.Processed, r.Succeeded, r.Duplicates, r.Failed)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().String("list", "", "file with URLs to queue, one per line")
	downloadCmd.Flags().String("dest", "", "destination directory (default from config)")
	downloadCmd.Flags().Bool("queue-only", false, "queue URLs without downloading")

	sweepCmd.Flags().StringSlice("ext", nil, "only consider these extensions (e.g. .jpg,.mp4)")
	sweepCmd.Flags().Int64("min-size", 0, "ignore files smaller than this many bytes")
	sweepCmd.Flags().StringSlice("exclude", nil, "skip paths containing any of these substrings")
	sweepCmd.Flags().Bool("ignore-hidden", false, "skip dotfiles and dot-directories")

	historyClearCmd.Flags().String("namespace", "websites", "history namespace: reddit, twitter or websites")

	runsCmd.Flags().Int("limit", 20, "how many runs to show")

	configCmd.AddCommand(configInitCmd, configListCmd)
	queueCmd.AddCommand(queueListCmd, queueClearCmd)
	indexCmd.AddCommand(indexScanCmd, indexStatsCmd, indexVerifyCmd, indexPruneCmd, indexDupesCmd)
	historyCmd.AddCommand(historyStatsCmd, historyClearCmd)
	mirrorCmd.AddCommand(mirrorCheckCmd, mirrorKeysInitCmd)

	rootCmd.AddCommand(configCmd, downloadCmd, queueCmd, indexCmd, sweepCmd, historyCmd, mirrorCmd, runsCmd)
}
