package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultWorkers is the phase-2 pool size when none is configured.
	DefaultWorkers = 3

	// MaxWorkers caps the pool to prevent resource exhaustion no matter
	// what the config asks for.
	MaxWorkers = 8

	defaultMaxAttempts  = 3
	defaultRetryBackoff = time.Second
)

// Options tunes orchestrator behavior. The zero value yields defaults.
type Options struct {
	// Workers is the phase-2 pool size, clamped to [1, MaxWorkers].
	Workers int

	// MaxAttempts bounds retries for transient failures (including the
	// initial attempt).
	MaxAttempts int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration

	// DownloadDir is the destination for candidates that carry no
	// per-item download path. Items with neither fail rather than land
	// in a temp directory that is removed after processing.
	DownloadDir string

	// Control supplies the cooperative pause/cancel flags.
	Control Control

	// Progress, when set, is invoked after every completed item.
	Progress ProgressFunc

	// Mirror, when set, receives newly archived content (best-effort).
	Mirror Mirror

	// IDs names per-item work directories. Defaults to random UUIDs.
	IDs IDGenerator
}

// Outcome classifies the result of one processed candidate. Duplicates
// and skips are normal outcomes, distinct from both success and failure.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkipped
	OutcomeDuplicate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// ItemResult is the per-candidate result delivered to the collector.
type ItemResult struct {
	Candidate Candidate
	Outcome   Outcome
	Path      string // final or existing canonical path, when applicable
	Reason    string // failure reason, when Outcome is OutcomeFailed
}

// Failure records one failed candidate for the run summary.
type Failure struct {
	MediaURL string
	Reason   string
}

// DiscoverySummary reports the outcome of phase 1.
type DiscoverySummary struct {
	Sources   int
	Enqueued  int
	Errors    int
	Cancelled bool
}

// DownloadSummary reports the outcome of phase 2.
type DownloadSummary struct {
	Processed      int
	Succeeded      int
	Skipped        int
	Duplicates     int
	Failed         int
	MirrorFailures int
	Cancelled      bool
	Failures       []Failure
}

// Orchestrator coordinates the two-phase discovery→download pipeline:
// phase 1 populates the durable queue from discoverers, phase 2 drains it
// with a bounded worker pool, layered fetch strategies, retry with
// backoff, and content-hash reconciliation against the index.
type Orchestrator struct {
	queue      Queue
	index      HashIndex
	history    History
	fileOps    FileOps
	strategies []Strategy
	logger     Logger

	workers      int
	downloadDir  string
	maxAttempts  int
	retryBackoff time.Duration
	control      Control
	progress     ProgressFunc
	mirror       Mirror
	ids          IDGenerator

	mirrorFailures atomic.Int64
}

// NewOrchestrator creates an orchestrator with the provided dependencies.
func NewOrchestrator(queue Queue, index HashIndex, history History, fileOps FileOps, strategies []Strategy, logger Logger, opts Options) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	ctl := opts.Control
	if ctl == nil {
		ctl = NopControl{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}

	return &Orchestrator{
		queue:        queue,
		index:        index,
		history:      history,
		fileOps:      fileOps,
		strategies:   strategies,
		logger:       logger,
		workers:      workers,
		downloadDir:  opts.DownloadDir,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
		control:      ctl,
		progress:     opts.Progress,
		mirror:       opts.Mirror,
		ids:          ids,
	}
}

// discoverySession buffers candidates emitted by a single discoverer so
// the queue is extended (and persisted) once per source.
type discoverySession struct {
	history History
	buf     []Candidate
}

func (s *discoverySession) IsDone(ns Namespace, sourceKey, itemID string) bool {
	return s.history.IsDone(ns, sourceKey, itemID)
}

func (s *discoverySession) Emit(c Candidate) {
	s.buf = append(s.buf, c)
}

// Discover runs phase 1: each discoverer enumerates candidates, the queue
// is extended per source, and finally deduplicated by history key.
// A failing discoverer is logged and skipped; discovery never touches the
// hash index.
func (o *Orchestrator) Discover(ctx context.Context, discoverers ...Discoverer) (*DiscoverySummary, error) {
	summary := &DiscoverySummary{Sources: len(discoverers)}

	for _, d := range discoverers {
		if !waitWhilePaused(o.control) || ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		session := &discoverySession{history: o.history}
		if err := d.Discover(ctx, session); err != nil {
			summary.Errors++
			o.logger.Warn("discovery failed", "source", d.Name(), "error", err)
			continue
		}

		o.queue.Extend(session.buf)
		summary.Enqueued += len(session.buf)
		o.logger.Info("source discovered", "source", d.Name(), "candidates", len(session.buf))
	}

	o.queue.EnsureUnique(func(c Candidate) string { return c.HistoryKey() })

	if err := o.history.Flush(); err != nil {
		o.logger.Warn("flushing history after discovery", "error", err)
	}

	return summary, nil
}

// Download runs phase 2: a bounded worker pool drains the queue. Items
// are dispatched in FIFO order but completion order is not guaranteed.
func (o *Orchestrator) Download(ctx context.Context) (*DownloadSummary, error) {
	pending := o.queue.Len()
	if pending == 0 {
		return &DownloadSummary{}, nil
	}

	o.logger.Info("download phase starting", "pending", pending, "workers", o.workers)

	items := make(chan Candidate)
	results := make(chan ItemResult)
	summary := &DownloadSummary{}

	// Dispatcher: pops in FIFO order, honoring pause/cancel between
	// items. Cancellation lets in-flight items finish but starts no new
	// ones.
	go func() {
		defer close(items)
		for {
			if !waitWhilePaused(o.control) || ctx.Err() != nil {
				return
			}
			c, ok := o.queue.PopNext()
			if !ok {
				return
			}
			select {
			case items <- c:
			case <-ctx.Done():
				// Item was popped but not dispatched; put it back at
				// the front so FIFO order survives a cancel/resume
				// cycle.
				o.queue.Requeue(c)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range items {
				results <- o.processItem(ctx, c)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		summary.Processed++
		succeeded := res.Outcome == OutcomeSuccess || res.Outcome == OutcomeDuplicate

		switch res.Outcome {
		case OutcomeSuccess:
			summary.Succeeded++
			o.logger.Info("downloaded", "url", res.Candidate.MediaURL, "path", res.Path)
		case OutcomeSkipped:
			summary.Skipped++
			o.logger.Debug("skipped (already downloaded)", "url", res.Candidate.MediaURL)
		case OutcomeDuplicate:
			summary.Duplicates++
			o.logger.Info("duplicate content", "url", res.Candidate.MediaURL, "existing", res.Path)
		case OutcomeFailed:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{MediaURL: res.Candidate.MediaURL, Reason: res.Reason})
			o.logger.Warn("download failed", "url", res.Candidate.MediaURL, "reason", res.Reason)
		}

		if o.progress != nil {
			o.progress(summary.Processed, succeeded)
		}
	}

	if o.control.ShouldCancel() || ctx.Err() != nil {
		summary.Cancelled = true
	}
	summary.MirrorFailures = int(o.mirrorFailures.Load())

	if err := o.history.Flush(); err != nil {
		o.logger.Warn("flushing history after downloads", "error", err)
	}

	o.logger.Info("download phase complete",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"duplicates", summary.Duplicates,
		"failed", summary.Failed)

	return summary, nil
}

// processItem runs the full per-candidate sequence: history skip check,
// layered download with retry, hash reconciliation, finalize, record.
// Errors never escape; they become a failed ItemResult.
func (o *Orchestrator) processItem(ctx context.Context, c Candidate) ItemResult {
	site := c.SiteKey()
	key := c.HistoryKey()

	if o.history.IsDone(NamespaceWebsites, site, key) {
		return ItemResult{Candidate: c, Outcome: OutcomeSkipped}
	}

	workDir := filepath.Join(os.TempDir(), "hoard-dl-"+o.ids.New())
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: fmt.Sprintf("creating temp dir: %v", err)}
	}
	defer os.RemoveAll(workDir)

	var lastErr error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.retryBackoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: "cancelled"}
			}
		}

		path, err := o.attemptStrategies(ctx, c, workDir)
		if err != nil {
			if IsPermanent(err) {
				// Not retried and not marked done: the item stays
				// eligible for a future run.
				return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: FailureReason(err)}
			}
			lastErr = err
			continue
		}
		if path == "" {
			lastErr = errors.New("no strategy produced a file")
			continue
		}

		return o.finalize(ctx, c, path)
	}

	return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: FailureReason(lastErr)}
}

// attemptStrategies tries each applicable strategy in order. Within one
// attempt a transiently failing layer falls through to the next; a
// permanent error aborts the chain.
func (o *Orchestrator) attemptStrategies(ctx context.Context, c Candidate, workDir string) (string, error) {
	var lastErr error
	for _, s := range o.strategies {
		if !s.Wants(c) {
			continue
		}
		path, err := s.Attempt(ctx, c, workDir)
		if err != nil {
			if IsPermanent(err) {
				return "", err
			}
			lastErr = err
			o.logger.Debug("strategy failed", "strategy", s.Name(), "url", c.MediaURL, "error", err)
			continue
		}
		if path != "" {
			o.logger.Debug("strategy produced file", "strategy", s.Name(), "url", c.MediaURL)
			return path, nil
		}
	}
	return "", lastErr
}

// finalize hashes the fetched file, suppresses byte-identical duplicates
// against the index and history, and otherwise moves the file into its
// destination and records it everywhere.
func (o *Orchestrator) finalize(ctx context.Context, c Candidate, tmpPath string) ItemResult {
	site := c.SiteKey()
	key := c.HistoryKey()

	digest := o.index.HashFile(tmpPath)
	if digest == "" {
		return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: "hashing downloaded file failed"}
	}

	// Cross-source duplicate: identical bytes already archived under a
	// different URL or site. Discard the fresh copy and point the
	// history entry at the existing canonical path.
	if existing, ok := o.index.PathForDigest(digest, true); ok {
		os.Remove(tmpPath)
		o.history.RecordMedia(site, key, filepath.Base(existing), digest, existing)
		return ItemResult{Candidate: c, Outcome: OutcomeDuplicate, Path: existing}
	}
	if existing, ok := o.history.PathForSHA(digest); ok {
		if _, err := os.Stat(existing); err == nil {
			os.Remove(tmpPath)
			o.history.RecordMedia(site, key, filepath.Base(existing), digest, existing)
			return ItemResult{Candidate: c, Outcome: OutcomeDuplicate, Path: existing}
		}
	}

	destDir := c.DownloadPath
	if destDir == "" {
		destDir = o.downloadDir
	}
	if destDir == "" {
		// Never fall back to the temp work dir: it is removed when the
		// item finishes and the archived file would vanish.
		return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: "no destination directory configured"}
	}
	final, err := o.fileOps.SafeMove(tmpPath, filepath.Join(destDir, filepath.Base(tmpPath)))
	if err != nil {
		return ItemResult{Candidate: c, Outcome: OutcomeFailed, Reason: fmt.Sprintf("finalizing file: %v", err)}
	}

	o.index.Record(final, c.MediaURL, map[string]string{"source_page": site})
	o.history.RecordMedia(site, key, filepath.Base(final), digest, final)
	o.mirrorContent(ctx, digest, final)

	return ItemResult{Candidate: c, Outcome: OutcomeSuccess, Path: final}
}

// mirrorContent replicates a newly archived file to the mirror, if one is
// configured. Failures are logged, never propagated.
func (o *Orchestrator) mirrorContent(ctx context.Context, digest, path string) {
	if o.mirror == nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		o.mirrorFailures.Add(1)
		o.logger.Warn("mirror: opening archived file", "path", path, "error", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		o.mirrorFailures.Add(1)
		o.logger.Warn("mirror: stat archived file", "path", path, "error", err)
		return
	}

	if err := o.mirror.PutContent(ctx, digest, f, info.Size()); err != nil {
		o.mirrorFailures.Add(1)
		o.logger.Warn("mirror: upload failed", "digest", digest, "error", err)
	}
}
