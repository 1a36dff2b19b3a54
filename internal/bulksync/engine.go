// Package bulksync uploads and drains document collections in fixed-size
// batches, with bounded retry, linear backoff, and throttling between
// batches to stay under the backend's rate limit. Batches always run
// strictly sequentially.
package bulksync

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// BatchSize is the number of rows per upload batch. Capped at the
	// provider's atomic-write ceiling by the caller's batch writer.
	BatchSize int

	// PageSize is the number of documents fetched per drain page.
	PageSize int

	// MaxRetries is the maximum number of attempts per batch.
	MaxRetries int

	// RetryDelay is the base backoff delay; attempt n waits n*RetryDelay.
	RetryDelay time.Duration

	// Throttle is the pause between successful batches.
	Throttle time.Duration
}

const (
	defaultBatchSize  = 200
	defaultPageSize   = 100
	defaultMaxRetries = 3
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// BatchError reports a batch whose retries were exhausted.
type BatchError struct {
	Batch    int // 1-based batch number
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d attempts: %v", e.Batch, e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// UploadProgress reports upload state after each committed batch.
type UploadProgress struct {
	Batch        int // 1-based, just committed
	TotalBatches int
	Done         int // rows committed so far
	Total        int
	Percent      float64
}

// DrainProgress reports drain state after each deleted page.
type DrainProgress struct {
	Batch   int // 1-based page number
	Removed int // running total of removed documents
}

// WriteBatchFunc commits rows [lo, hi) as one atomic batch.
type WriteBatchFunc func(ctx context.Context, lo, hi int) error

// FetchPageFunc returns up to limit remaining document ids.
type FetchPageFunc func(ctx context.Context, limit int) ([]string, error)

// DeleteBatchFunc removes the given documents as one atomic batch.
type DeleteBatchFunc func(ctx context.Context, ids []string) error

// Engine runs batched uploads and drains.
type Engine struct {
	cfg Config
}

// New creates an engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Upload partitions total rows into fixed-size batches and commits them
// in order via write. Each batch is retried up to MaxRetries times with
// linearly increasing delay; if retries exhaust, the upload aborts with
// a BatchError naming the failing batch. Committed batches are not
// rolled back. onProgress, if non-nil, is called after each batch.
func (e *Engine) Upload(ctx context.Context, total int, write WriteBatchFunc, onProgress func(UploadProgress)) error {
	if total == 0 {
		return nil
	}

	totalBatches := (total + e.cfg.BatchSize - 1) / e.cfg.BatchSize

	for i := 0; i < totalBatches; i++ {
		lo := i * e.cfg.BatchSize
		hi := lo + e.cfg.BatchSize
		if hi > total {
			hi = total
		}

		attempt := func(ctx context.Context) error { return write(ctx, lo, hi) }
		if err := e.runBatch(ctx, i+1, attempt); err != nil {
			return err
		}

		if onProgress != nil {
			onProgress(UploadProgress{
				Batch:        i + 1,
				TotalBatches: totalBatches,
				Done:         hi,
				Total:        total,
				Percent:      float64(hi) / float64(total) * 100,
			})
		}

		// Throttle between batches, not after the last one.
		if i < totalBatches-1 {
			if err := sleep(ctx, e.cfg.Throttle); err != nil {
				return err
			}
		}
	}

	return nil
}

// Drain repeatedly fetches a page of remaining documents and deletes it
// as one atomic batch, until a fetch returns an empty page. Deleting an
// already-empty collection terminates immediately, so a partially
// failed drain can be re-run from the top.
func (e *Engine) Drain(ctx context.Context, fetch FetchPageFunc, del DeleteBatchFunc, onProgress func(DrainProgress)) error {
	removed := 0
	batch := 0

	for {
		ids, err := fetch(ctx, e.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch page: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		batch++
		attempt := func(ctx context.Context) error { return del(ctx, ids) }
		if err := e.runBatch(ctx, batch, attempt); err != nil {
			return err
		}

		removed += len(ids)
		if onProgress != nil {
			onProgress(DrainProgress{Batch: batch, Removed: removed})
		}

		if err := sleep(ctx, e.cfg.Throttle); err != nil {
			return err
		}
	}
}

// runBatch attempts one batch with bounded retry and linear backoff.
func (e *Engine) runBatch(ctx context.Context, batch int, attempt func(context.Context) error) error {
	var lastErr error

	for try := 1; try <= e.cfg.MaxRetries; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		log.Printf("[BulkSync] Batch %d failed (attempt %d/%d): %v", batch, try, e.cfg.MaxRetries, lastErr)

		if try < e.cfg.MaxRetries {
			if err := sleep(ctx, time.Duration(try)*e.cfg.RetryDelay); err != nil {
				return err
			}
		}
	}

	return &BatchError{Batch: batch, Attempts: e.cfg.MaxRetries, Err: lastErr}
}

// sleep waits for d or until the context is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
