package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
	"github.com/realestate9x/whatsapp-listings/internal/repo"
)

var (
	// ErrAlreadyRunning is returned by Start when the job is scheduled.
	ErrAlreadyRunning = errors.New("extract: job already running")
	// ErrNotRunning is returned by Stop when no schedule is active.
	ErrNotRunning = errors.New("extract: job not running")
)

// JobConfig carries the extraction knobs. Zero BatchSize and Interval fall
// back to the defaults in DefaultJobConfig; MinConfidence falls back only
// when negative, since zero is a legal gate (any positive confidence
// passes).
type JobConfig struct {
	BatchSize     int
	MinConfidence float64
	Interval      time.Duration
}

// DefaultJobConfig returns the production defaults.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		BatchSize:     10,
		MinConfidence: 0.3,
		Interval:      5 * time.Minute,
	}
}

// PassStats summarizes one extraction pass over the unprocessed queue.
type PassStats struct {
	Scanned  int `json:"scanned"`
	Listings int `json:"listings"`
	Batches  int `json:"batches"`
	Errors   int `json:"errors"`
}

// StatusReport is the job's observable state, computed from the store so it
// stays truthful across restarts.
type StatusReport struct {
	Running       bool    `json:"running"`
	TotalMessages int64   `json:"total_messages"`
	Processed     int64   `json:"processed_messages"`
	Pending       int64   `json:"pending_messages"`
	TotalListings int64   `json:"total_listings"`
	AvgConfidence float64 `json:"avg_confidence"`
	LastRun       string  `json:"last_run,omitempty"`
}

// Job drains the unprocessed message queue in batches, asks the inference
// backend for listings, and persists the normalized results. Messages are
// marked processed exactly once per text, whether or not extraction
// produced a listing, so a pass never reconsiders old rows.
type Job struct {
	db        *gorm.DB
	inference Inference
	cfg       JobConfig
	log       zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun time.Time
}

// NewJob constructs a Job, applying defaults per the JobConfig rules.
func NewJob(db *gorm.DB, inference Inference, cfg JobConfig, log zerolog.Logger) *Job {
	def := DefaultJobConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MinConfidence < 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Job{
		db:        db,
		inference: inference,
		cfg:       cfg,
		log:       log.With().Str("component", "extraction").Logger(),
	}
}

// Start schedules recurring passes at the given interval (config default
// when zero) and fires one pass immediately in the background. Overlapping
// runs are skipped rather than queued.
func (j *Job) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = j.cfg.Interval
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return ErrAlreadyRunning
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.log.Error().Err(err).Msg("extraction pass failed")
		}
	}); err != nil {
		return fmt.Errorf("extract: schedule: %w", err)
	}
	c.Start()
	j.cron = c

	go func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.log.Error().Err(err).Msg("initial extraction pass failed")
		}
	}()

	j.log.Info().Dur("interval", interval).Msg("extraction job started")
	return nil
}

// Stop cancels the schedule. An in-flight pass finishes on its own.
func (j *Job) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		return ErrNotRunning
	}
	j.cron.Stop()
	j.cron = nil
	j.log.Info().Msg("extraction job stopped")
	return nil
}

// Running reports whether a schedule is active.
func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cron != nil
}

// RunOnce drains the unprocessed queue in batches until it is empty and
// returns aggregate stats. Batch-level failures are counted and logged but
// do not abort the pass; a failed inference call leaves its messages
// unprocessed for the next pass, while a malformed reply consumes them so
// one poisoned batch cannot wedge the queue forever.
func (j *Job) RunOnce(ctx context.Context) (PassStats, error) {
	var stats PassStats
	for {
		msgs, err := repo.ListUnprocessedMessages(ctx, j.db, j.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("extract: list unprocessed: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		n, err := j.runBatch(ctx, msgs)
		stats.Batches++
		stats.Scanned += len(msgs)
		stats.Listings += n
		if err != nil {
			stats.Errors++
			batchErrors.Inc()
			j.log.Error().Err(err).Int("batch", len(msgs)).Msg("extraction batch failed")
			if !errors.Is(err, ErrBatchMismatch) {
				// Inference unavailable: retry the same rows next pass.
				break
			}
		}
		if len(msgs) < j.cfg.BatchSize {
			break
		}
	}

	j.mu.Lock()
	j.lastRun = time.Now()
	j.mu.Unlock()

	j.log.Info().
		Int("scanned", stats.Scanned).
		Int("listings", stats.Listings).
		Int("errors", stats.Errors).
		Msg("extraction pass complete")
	return stats, nil
}

// runBatch processes one batch of messages and returns the number of
// listings stored.
func (j *Job) runBatch(ctx context.Context, msgs []domain.GroupMessage) (int, error) {
	// Blank texts carry nothing extractable; retire them without spending
	// an inference call.
	texts := make([]string, 0, len(msgs))
	idx := make([]int, 0, len(msgs))
	var blank []string
	for i, m := range msgs {
		if isBlank(m.MessageText) {
			blank = append(blank, m.ID)
			continue
		}
		texts = append(texts, m.MessageText)
		idx = append(idx, i)
	}
	if len(blank) > 0 {
		if err := repo.MarkMessagesProcessed(ctx, j.db, blank); err != nil {
			return 0, fmt.Errorf("extract: mark blank: %w", err)
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}

	results, raw, err := j.inference.ExtractBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrBatchMismatch) {
			// The reply cannot be attributed positionally. Consume the
			// batch so the queue keeps moving.
			ids := make([]string, len(idx))
			for k, i := range idx {
				ids[k] = msgs[i].ID
			}
			if mErr := repo.MarkMessagesProcessed(ctx, j.db, ids); mErr != nil {
				return 0, fmt.Errorf("extract: mark mismatched batch: %w", mErr)
			}
		}
		return 0, err
	}

	stored := 0
	ids := make([]string, 0, len(idx))
	for k, i := range idx {
		m := msgs[i]
		for _, c := range results[k].Candidates {
			l, ok := normalizeCandidate(c, &m, raw, j.cfg.MinConfidence)
			if !ok {
				continue
			}
			if err := repo.CreateListing(ctx, j.db, l); err != nil {
				j.log.Error().Err(err).Str("message_id", m.ID).Msg("store listing failed")
				continue
			}
			listingsExtracted.WithLabelValues(m.UserID).Inc()
			stored++
		}
		ids = append(ids, m.ID)
	}
	if err := repo.MarkMessagesProcessed(ctx, j.db, ids); err != nil {
		return stored, fmt.Errorf("extract: mark processed: %w", err)
	}
	messagesProcessed.Add(float64(len(ids)))
	return stored, nil
}

// Status computes the current pipeline counters from the store.
func (j *Job) Status(ctx context.Context) (StatusReport, error) {
	total, err := repo.CountMessages(ctx, j.db)
	if err != nil {
		return StatusReport{}, err
	}
	processed, err := repo.CountProcessedMessages(ctx, j.db)
	if err != nil {
		return StatusReport{}, err
	}
	listings, err := repo.CountListings(ctx, j.db)
	if err != nil {
		return StatusReport{}, err
	}
	avg, err := repo.AvgListingConfidence(ctx, j.db)
	if err != nil {
		return StatusReport{}, err
	}

	j.mu.Lock()
	running := j.cron != nil
	lastRun := j.lastRun
	j.mu.Unlock()

	r := StatusReport{
		Running:       running,
		TotalMessages: total,
		Processed:     processed,
		Pending:       total - processed,
		TotalListings: listings,
		AvgConfidence: avg,
	}
	if !lastRun.IsZero() {
		r.LastRun = lastRun.UTC().Format(time.RFC3339)
	}
	return r, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
