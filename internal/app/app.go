package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"hoard/internal/config"
	"hoard/internal/core"
	"hoard/internal/database"
	"hoard/internal/encryption"
	"hoard/internal/fetch"
	"hoard/internal/fs"
	"hoard/internal/hashindex"
	"hoard/internal/history"
	"hoard/internal/queue"
	"hoard/internal/vault"
)

// HoardApp is the application layer between the CLI and the pipeline.
// It constructs all dependencies from config, exposes high-level
// operations, and records each run in the journal on Close.
type HoardApp struct {
	cfg       *config.Config
	index     *hashindex.Index
	history   *history.Store
	queue     *queue.Queue
	fileOps   *fs.OSFileOps
	journal   *database.Journal
	vault     vault.Vault
	encryptor core.Encryptor
	control   *core.FlagControl
	clock     core.Clock
	logger    core.Logger
	logFile   *os.File

	operation  string
	parameters string
	runID      int64 // journal row ID; 0 = not persisted
	startedAt  time.Time
	status     string
	counts     database.RunCounts
}

// NewHoardApp creates a fully wired HoardApp from the given config.
// operation identifies the CLI command being run (e.g. "Download", "Sweep").
// The caller must call Close when done.
func NewHoardApp(cfg *config.Config, operation string) (*HoardApp, error) {
	clock := core.RealClock{}
	runID := clock.Now().UTC().Format("20060102T150405Z")

	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	v, err := vault.NewVaultFromConfig(context.Background(), cfg.Mirror, enc)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating mirror vault: %w", err)
	}

	journal, err := database.NewJournalFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening run journal: %w", err)
	}

	return &HoardApp{
		cfg:       cfg,
		index:     hashindex.New(cfg.IndexPath(), logger),
		history:   history.New(cfg.HistoryPath(), logger, clock),
		queue:     queue.New(cfg.QueuePath(), logger),
		fileOps:   fs.NewOSFileOps(),
		journal:   journal,
		vault:     v,
		encryptor: enc,
		control:   core.NewFlagControl(),
		clock:     clock,
		logger:    logger,
		logFile:   logFile,
		operation: operation,
		startedAt: clock.Now(),
		status:    "success",
	}, nil
}

// Control returns the shared pause/cancel flags, for signal handlers.
func (a *HoardApp) Control() *core.FlagControl { return a.control }

// MarkError records that the run failed; picked up by Close.
func (a *HoardApp) MarkError() { a.status = "error" }

// persistRun saves the run to the journal, giving it an auto-increment ID.
// This should only be called for state-mutating commands.
func (a *HoardApp) persistRun(ctx context.Context, parameters string) error {
	if a.runID != 0 {
		return nil // already persisted
	}
	a.parameters = parameters
	id, err := a.journal.StartRun(ctx, a.operation, parameters, a.startedAt)
	if err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}
	a.runID = id
	return nil
}

// strategies builds the layered download chain from config: extractor
// first, then direct fetch, then the gallery fallback.
func (a *HoardApp) strategies() []core.Strategy {
	dl := a.cfg.Downloads
	fetchTimeout := time.Duration(dl.FetchTimeoutSeconds) * time.Second
	extractorTimeout := time.Duration(dl.ExtractorTimeoutSeconds) * time.Second

	var chain []core.Strategy
	if dl.ExtractorBinary != "" {
		chain = append(chain, fetch.NewExtractorStrategy(dl.ExtractorBinary, extractorTimeout, dl.UserAgent))
	}
	chain = append(chain, fetch.NewDirectStrategy(fetchTimeout, dl.UserAgent))
	if dl.GalleryBinary != "" {
		chain = append(chain, fetch.NewGalleryStrategy(dl.GalleryBinary, extractorTimeout))
	}
	return chain
}

// orchestrator wires the pipeline with the app's stores and config.
func (a *HoardApp) orchestrator(progress core.ProgressFunc) *core.Orchestrator {
	opts := core.Options{
		Workers:     a.cfg.Downloads.Workers,
		DownloadDir: a.cfg.Downloads.DownloadDir,
		Control:     a.control,
		Progress:    progress,
	}
	if a.vault != nil {
		opts.Mirror = a.vault
	}
	return core.NewOrchestrator(a.queue, a.index, a.history, a.fileOps, a.strategies(), a.logger, opts)
}

// Enqueue runs the discovery phase over the given URL sources and extends
// the work queue. destDir defaults to the configured download directory.
func (a *HoardApp) Enqueue(ctx context.Context, urls []string, listFile, destDir string) (*core.DiscoverySummary, error) {
	if err := a.persistRun(ctx, fmt.Sprintf("urls=%d list=%s", len(urls), listFile)); err != nil {
		return nil, err
	}
	if destDir == "" {
		destDir = a.cfg.Downloads.DownloadDir
	}

	var sources []core.Discoverer
	if len(urls) > 0 {
		sources = append(sources, NewListSource("args", urls, destDir))
	}
	if listFile != "" {
		src, err := NewListSourceFromFile(listFile, destDir)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	summary, err := a.orchestrator(nil).Discover(ctx, sources...)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Download runs the download phase, draining the persistent queue with
// the configured worker pool. progress may be nil.
func (a *HoardApp) Download(ctx context.Context, progress core.ProgressFunc) (*core.DownloadSummary, error) {
	if err := a.persistRun(ctx, fmt.Sprintf("pending=%d", a.queue.Len())); err != nil {
		return nil, err
	}

	summary, err := a.orchestrator(progress).Download(ctx)
	if err != nil {
		return nil, err
	}

	a.counts.Processed += int64(summary.Processed)
	a.counts.Succeeded += int64(summary.Succeeded)
	a.counts.Failed += int64(summary.Failed)
	a.counts.Duplicates += int64(summary.Duplicates)
	a.counts.Skipped += int64(summary.Skipped)
	return summary, nil
}

// Sweep deduplicates sourceDir into destDir using the configured filters
// unless explicit ones are given.
func (a *HoardApp) Sweep(ctx context.Context, sourceDir, destDir string, filters *core.SweepFilters, progress core.SweepProgressFunc) (*core.SweepSummary, error) {
	if err := a.persistRun(ctx, fmt.Sprintf("source=%s dest=%s", sourceDir, destDir)); err != nil {
		return nil, err
	}

	f := a.sweepFilters()
	if filters != nil {
		f = *filters
	}

	sweeper := core.NewSweeper(a.index, a.fileOps, a.logger, a.control, progress)
	summary, err := sweeper.Run(sourceDir, destDir, f)
	if err != nil {
		return nil, err
	}

	a.counts.Processed += int64(summary.Counted)
	a.counts.Succeeded += int64(summary.Moved)
	a.counts.Failed += int64(summary.MoveFailures)
	a.counts.Duplicates += int64(summary.PlannedMoves)
	return summary, nil
}

// sweepFilters converts the config sweep section into pipeline filters.
func (a *HoardApp) sweepFilters() core.SweepFilters {
	s := a.cfg.Sweep
	return core.SweepFilters{
		IncludeExts:       s.IncludeExts,
		MinSize:           s.MinSizeBytes,
		ExcludeSubstrings: s.ExcludeSubstrings,
		IgnoreHidden:      s.IgnoreHidden,
	}
}

// ScanIndex walks dir and records every untracked file in the hash index.
// Returns the number of files added.
func (a *HoardApp) ScanIndex(ctx context.Context, dir string, progress func(added int)) (int, error) {
	if err := a.persistRun(ctx, fmt.Sprintf("dir=%s", dir)); err != nil {
		return 0, err
	}
	added, err := a.index.ScanTree(dir, progress)
	a.counts.Processed += int64(added)
	a.counts.Succeeded += int64(added)
	return added, err
}

// IndexStats returns summary statistics over the hash index.
func (a *HoardApp) IndexStats() hashindex.Stats {
	return a.index.Statistics()
}

// VerifyIndex re-checks every tracked file on disk and returns how many
// are missing.
func (a *HoardApp) VerifyIndex() int {
	return a.index.VerifyFiles()
}

// FindDuplicates hashes every file under dir and returns the groups of
// paths with identical content, keyed by digest.
func (a *HoardApp) FindDuplicates(dir string) (map[string][]string, error) {
	return a.index.FindDuplicateGroups(dir)
}

// PruneIndex drops entries whose files no longer exist and returns how
// many were removed.
func (a *HoardApp) PruneIndex(ctx context.Context) (int, error) {
	if err := a.persistRun(ctx, ""); err != nil {
		return 0, err
	}
	removed := a.index.CleanupMissing()
	a.counts.Processed += int64(removed)
	return removed, nil
}

// HistoryStats returns summary statistics over the download history.
func (a *HoardApp) HistoryStats() history.Stats {
	return a.history.Statistics()
}

// ClearHistory removes history for one source, or everything when
// sourceKey is empty.
func (a *HoardApp) ClearHistory(ctx context.Context, ns core.Namespace, sourceKey string) error {
	if err := a.persistRun(ctx, fmt.Sprintf("ns=%s source=%s", ns, sourceKey)); err != nil {
		return err
	}
	if sourceKey == "" {
		a.history.ClearAll()
	} else {
		a.history.ClearSource(ns, sourceKey)
	}
	return a.history.Flush()
}

// QueueItems returns a snapshot of the pending work queue.
func (a *HoardApp) QueueItems() []core.Candidate {
	return a.queue.Items()
}

// ClearQueue drops all pending work.
func (a *HoardApp) ClearQueue(ctx context.Context) error {
	if err := a.persistRun(ctx, fmt.Sprintf("pending=%d", a.queue.Len())); err != nil {
		return err
	}
	a.queue.Clear()
	return nil
}

// RecentRuns lists the most recent journal entries, newest first.
func (a *HoardApp) RecentRuns(ctx context.Context, limit int) ([]*database.Run, error) {
	return a.journal.RecentRuns(ctx, limit)
}

// SetupKeys generates the mirror encryption key pair.
func (a *HoardApp) SetupKeys(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	return a.encryptor.Setup(passphrase)
}

// ValidateMirror checks that the configured mirror is reachable.
func (a *HoardApp) ValidateMirror(ctx context.Context) error {
	if a.vault == nil {
		return fmt.Errorf("no mirror configured")
	}
	return a.vault.ValidateSetup(ctx)
}

// Close finalizes the journal entry (for persisted runs), flushes the
// history, and closes all resources.
func (a *HoardApp) Close() error {
	var firstErr error

	if err := a.history.Flush(); err != nil {
		firstErr = fmt.Errorf("flushing history: %w", err)
	}

	if a.runID != 0 {
		err := a.journal.FinishRun(context.Background(), a.runID, a.status, a.clock.Now(), a.counts)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("finishing journal run: %w", err)
		}
	}

	if err := a.journal.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
