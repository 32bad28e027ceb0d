package work

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/redis"
	"github.com/LexiconIndonesia/creator-crawler-service/repository"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	workStateKeyPrefix = "work:state:"
	runningState       = "running"
	// workTimeout sets how long a work is considered running before it's considered stale.
	// This prevents works that died without proper cleanup from being stuck in 'running' state forever.
	workTimeout = 24 * time.Hour
)

const (
	StatusStarted    = "started"
	StatusOnProgress = "on_progress"
	StatusPaused     = "paused"
	StatusFinished   = "finished"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

var ErrWorkAlreadyRunning = errors.New("work is already running")

// RunStore persists run status transitions. *repository.Queries satisfies it.
type RunStore interface {
	UpsertCrawlRunStatus(ctx context.Context, arg repository.UpsertCrawlRunStatusParams) error
	FinishCrawlRun(ctx context.Context, arg repository.FinishCrawlRunParams) error
}

// RunSummary is what a finished crawl run reports.
type RunSummary struct {
	Found           int
	NotFound        int
	DurationSeconds int64
}

// WorkManager tracks which crawl runs are live in Redis and mirrors their
// status into the run history.
type WorkManager struct {
	redis *redis.RedisClient
	runs  RunStore
}

// NewWorkManager creates a new WorkManager. runs can be nil; in that case
// run state will only be stored in Redis.
func NewWorkManager(client *redis.RedisClient, runs RunStore) *WorkManager {
	return &WorkManager{
		redis: client,
		runs:  runs,
	}
}

func (wm *WorkManager) getWorkKey(workID string) string {
	return fmt.Sprintf("%s%s", workStateKeyPrefix, workID)
}

// Start marks a work as running. If the work is already running, it returns
// ErrWorkAlreadyRunning.
func (wm *WorkManager) Start(ctx context.Context, workID string, useAPI bool, total int) error {
	key := wm.getWorkKey(workID)
	ok, err := wm.redis.SetNX(ctx, key, runningState, workTimeout)
	if err != nil {
		return fmt.Errorf("failed to start work %s: %w", workID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkAlreadyRunning, workID)
	}

	if err := wm.upsertStatus(ctx, repository.UpsertCrawlRunStatusParams{
		ID:       workID,
		Status:   StatusStarted,
		UseApi:   useAPI,
		TotalIds: int32(total),
	}); err != nil {
		log.Warn().Err(err).Str("workID", workID).Msg("failed to persist run start to DB")
	}

	return nil
}

// IsRunning checks if a work is currently marked as running.
func (wm *WorkManager) IsRunning(ctx context.Context, workID string) (bool, error) {
	state, err := wm.redis.Get(ctx, wm.getWorkKey(workID))
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get work state for %s: %w", workID, err)
	}
	return state == runningState, nil
}

// Resume marks a paused work as running again and refreshes its expiration.
func (wm *WorkManager) Resume(ctx context.Context, workID string) error {
	if err := wm.redis.Set(ctx, wm.getWorkKey(workID), runningState, workTimeout); err != nil {
		return fmt.Errorf("failed to resume work %s: %w", workID, err)
	}

	if err := wm.upsertStatus(ctx, repository.UpsertCrawlRunStatusParams{ID: workID, Status: StatusOnProgress}); err != nil {
		log.Warn().Err(err).Str("workID", workID).Msg("failed to persist run resume to DB")
	}
	return nil
}

// Pause releases the running mark but keeps the run resumable.
func (wm *WorkManager) Pause(ctx context.Context, workID string) error {
	return wm.release(ctx, workID, StatusPaused)
}

// Cancel marks a work as cancelled by removing its state from Redis.
func (wm *WorkManager) Cancel(ctx context.Context, workID string) error {
	return wm.release(ctx, workID, StatusCancelled)
}

// Fail marks a work as aborted by an unrecoverable error.
func (wm *WorkManager) Fail(ctx context.Context, workID string) error {
	return wm.release(ctx, workID, StatusFailed)
}

// Complete marks a work as finished and records its summary.
func (wm *WorkManager) Complete(ctx context.Context, workID string, summary RunSummary) error {
	if err := wm.removeWork(ctx, workID); err != nil {
		return err
	}

	if wm.runs == nil {
		return nil
	}
	if err := wm.runs.FinishCrawlRun(ctx, repository.FinishCrawlRunParams{
		ID:              workID,
		Status:          StatusFinished,
		Found:           int32(summary.Found),
		NotFound:        int32(summary.NotFound),
		DurationSeconds: summary.DurationSeconds,
	}); err != nil {
		log.Warn().Err(err).Str("workID", workID).Msg("failed to persist run completion to DB")
	}
	return nil
}

// ListRunningWorks returns a slice of work IDs for all works currently marked as running.
// It uses SCAN to avoid blocking the Redis server.
func (wm *WorkManager) ListRunningWorks(ctx context.Context) ([]string, error) {
	var workIDs []string
	pattern := fmt.Sprintf("%s*", workStateKeyPrefix)

	iter := wm.redis.GetClient().Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		workIDs = append(workIDs, strings.TrimPrefix(iter.Val(), workStateKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan for running works in Redis: %w", err)
	}

	return workIDs, nil
}

func (wm *WorkManager) release(ctx context.Context, workID, status string) error {
	if err := wm.removeWork(ctx, workID); err != nil {
		return err
	}
	if err := wm.upsertStatus(ctx, repository.UpsertCrawlRunStatusParams{ID: workID, Status: status}); err != nil {
		log.Warn().Err(err).Str("workID", workID).Str("status", status).Msg("failed to persist run status to DB")
	}
	return nil
}

func (wm *WorkManager) removeWork(ctx context.Context, workID string) error {
	if err := wm.redis.Delete(ctx, wm.getWorkKey(workID)); err != nil {
		return fmt.Errorf("failed to remove work %s: %w", workID, err)
	}
	return nil
}

// upsertStatus is a no-op without a run store.
func (wm *WorkManager) upsertStatus(ctx context.Context, arg repository.UpsertCrawlRunStatusParams) error {
	if wm.runs == nil {
		return nil
	}
	return wm.runs.UpsertCrawlRunStatus(ctx, arg)
}
