package engine

import (
	"context"
	"math/rand"
	"time"

	"weibo-harvester/internal/platform/clock"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/platform/logger"
	"weibo-harvester/internal/services/harvester/domain"
)

// RetryBackoff is the fixed exponential-backoff sequence for transient fetch failures
var RetryBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// PolitenessMin and PolitenessMax bound the randomized inter-page sleep
const (
	PolitenessMin = 1 * time.Second
	PolitenessMax = 3 * time.Second
)

// Engine executes one directional sweep: iterate shards or tail forward, drive the
// fetcher, normalize/dedupe posts, write the store, emit progress, advance the
// checkpoint, and honor cancellation.
type Engine struct {
	Tasks       domain.TaskStore
	Posts       domain.PostStore
	Checkpoints domain.CheckpointStore
	Fetcher     domain.Fetcher
	Events      domain.EventEmitter
	Clock       clock.Clock
	Timeouts    Timeouts

	// Politeness returns the inter-page sleep duration; overridable in tests to avoid
	// real waits. Defaults to a uniform random draw in [PolitenessMin, PolitenessMax].
	Politeness func() time.Duration

	log *logger.Logger
}

// NewEngine wires an Engine from its store and adapter dependencies
func NewEngine(tasks domain.TaskStore, posts domain.PostStore, checkpoints domain.CheckpointStore,
	fetcher domain.Fetcher, events domain.EventEmitter, clk clock.Clock) *Engine {
	return &Engine{
		Tasks:       tasks,
		Posts:       posts,
		Checkpoints: checkpoints,
		Fetcher:     fetcher,
		Events:      events,
		Clock:       clk,
		Timeouts:    DefaultTimeouts(),
		Politeness:  politenessDelay,
		log:         logger.Named("harvester.engine"),
	}
}

// RunBackward processes shards in reverse time order, most recent first, so a partial
// sweep leaves the most recent portion already durable.
func (e *Engine) RunBackward(ctx context.Context, task *domain.Task, creds domain.Credentials, plan []domain.Shard) error {
	started := e.Clock.Now()

	for i := len(plan) - 1; i >= 0; i-- {
		shard := plan[i]
		startPage := 1
		if cp, _ := e.Checkpoints.Load(ctx, task.ID); cp != nil && cp.ShardStart.Equal(shard.Start) && cp.ShardEnd.Equal(shard.End) {
			startPage = cp.CurrentPage
		}

		outcome, err := e.runShard(ctx, task, creds, domain.DirectionBackward, shard, startPage)
		if err != nil {
			return err
		}
		switch outcome {
		case shardCancelled:
			return nil
		case shardCaptcha:
			return nil
		}

		next := shard
		if i > 0 {
			next = plan[i-1]
		}
		if err := e.saveCheckpoint(ctx, task.ID, domain.DirectionBackward, next, 1, []domain.Shard{shard}); err != nil {
			return perr.Storagef("persist checkpoint after shard completion: %v", err)
		}
	}

	if err := e.Tasks.UpdateStatus(ctx, task.ID, domain.StatusHistoryCompleted, nil, domain.DirectionBackward); err != nil {
		return perr.Storagef("finalize history sweep: %v", err)
	}
	_ = e.Checkpoints.Delete(ctx, task.ID)
	e.emitCompleted(ctx, task.ID, domain.StatusHistoryCompleted, started)
	return nil
}

// RunForward tails a single shard [last_max_post_time_ceil_hour, now_ceil_hour]
func (e *Engine) RunForward(ctx context.Context, task *domain.Task, creds domain.Credentials, window domain.Shard) error {
	started := e.Clock.Now()
	startPage := 1
	if cp, _ := e.Checkpoints.Load(ctx, task.ID); cp != nil && cp.ShardStart.Equal(window.Start) && cp.ShardEnd.Equal(window.End) {
		startPage = cp.CurrentPage
	}

	outcome, err := e.runShard(ctx, task, creds, domain.DirectionForward, window, startPage)
	if err != nil {
		return err
	}
	if outcome != shardComplete {
		return nil
	}

	_ = e.Checkpoints.Delete(ctx, task.ID)
	e.emitCompleted(ctx, task.ID, domain.StatusIncrementalCrawling, started)
	return nil
}

type shardOutcome int

const (
	shardComplete shardOutcome = iota
	shardCancelled
	shardCaptcha
)

// runShard executes the page loop for a single shard
func (e *Engine) runShard(ctx context.Context, task *domain.Task, creds domain.Credentials, dir domain.Direction, shard domain.Shard, startPage int) (shardOutcome, error) {
	page := startPage
	if page < 1 {
		page = 1
	}

	for page <= domain.MaxPage {
		if err := ctx.Err(); err != nil {
			_ = e.saveCheckpoint(ctx, task.ID, dir, shard, page, nil)
			return shardCancelled, nil
		}

		result, err := e.fetchWithRetry(ctx, task.Keyword, shard.Start, shard.End, page, creds)
		if err != nil {
			if isCancellation(err) {
				_ = e.saveCheckpoint(ctx, task.ID, dir, shard, page, nil)
				return shardCancelled, nil
			}
			reason := err.Error()
			_ = e.Tasks.UpdateStatus(ctx, task.ID, domain.StatusFailed, &reason, dir)
			e.emitError(ctx, task.ID, "NETWORK_ERROR", reason)
			return shardComplete, err
		}

		if result.Captcha {
			_ = e.saveCheckpoint(ctx, task.ID, dir, shard, page, nil)
			if err := e.Tasks.UpdateStatus(ctx, task.ID, domain.StatusPaused, nil, dir); err != nil {
				return shardCaptcha, perr.Storagef("pause on captcha: %v", err)
			}
			e.emitError(ctx, task.ID, "CAPTCHA_DETECTED", "remote requested human verification")
			return shardCaptcha, nil
		}

		posts := e.normalize(task.ID, result.Posts)
		survivors := e.dropExisting(ctx, task.ID, posts)

		var addedCount int64
		if len(survivors) > 0 {
			inserted, err := e.Posts.SavePosts(ctx, task.ID, survivors)
			if err != nil {
				reason := err.Error()
				_ = e.Tasks.UpdateStatus(ctx, task.ID, domain.StatusFailed, &reason, dir)
				e.emitError(ctx, task.ID, "STORAGE_ERROR", reason)
				return shardComplete, err
			}
			addedCount = inserted

			latest := survivors[0].CreatedAt
			for _, p := range survivors {
				if p.CreatedAt.After(latest) {
					latest = p.CreatedAt
				}
			}
			if err := e.Tasks.UpdateProgress(ctx, task.ID, latest, addedCount); err != nil {
				return shardComplete, perr.Storagef("update progress: %v", err)
			}
		}

		status := domain.StatusHistoryCrawling
		if dir == domain.DirectionForward {
			status = domain.StatusIncrementalCrawling
		}
		e.Events.Progress(domain.ProgressEvent{
			TaskID:       task.ID,
			Status:       status,
			ShardStart:   shard.Start,
			ShardEnd:     shard.End,
			Page:         page,
			CrawledCount: task.CrawledCount + addedCount,
			Timestamp:    e.Clock.Now(),
		})
		task.CrawledCount += addedCount

		if err := sleepCtx(ctx, e.Politeness()); err != nil {
			_ = e.saveCheckpoint(ctx, task.ID, dir, shard, page, nil)
			return shardCancelled, nil
		}

		if !result.HasMore {
			break
		}
		page++
		_ = e.saveCheckpoint(ctx, task.ID, dir, shard, page, nil)
	}

	return shardComplete, nil
}

func (e *Engine) saveCheckpoint(ctx context.Context, taskID string, dir domain.Direction, shard domain.Shard, page int, newlyCompleted []domain.Shard) error {
	existing, _ := e.Checkpoints.Load(ctx, taskID)
	completed := newlyCompleted
	if existing != nil {
		completed = append(append([]domain.Shard{}, existing.CompletedShards...), newlyCompleted...)
	}
	return e.Checkpoints.Save(ctx, domain.Checkpoint{
		TaskID:          taskID,
		Direction:       dir,
		ShardStart:      shard.Start,
		ShardEnd:        shard.End,
		CurrentPage:     page,
		CompletedShards: completed,
		SavedAt:         e.Clock.Now(),
	})
}

// fetchWithRetry calls the fetcher with exponential-backoff retry on transient errors;
// captcha and context cancellation are never retried.
func (e *Engine) fetchWithRetry(ctx context.Context, keyword string, start, end time.Time, page int, creds domain.Credentials) (domain.FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= len(RetryBackoff); attempt++ {
		fctx, cancel := e.Timeouts.ForFetch(ctx)
		result, err := e.Fetcher.Fetch(fctx, keyword, start, end, page, creds)
		cancel()

		if err == nil || result.Captcha {
			return result, nil
		}
		lastErr = err
		if isCancellation(err) || attempt == len(RetryBackoff) {
			break
		}
		if err := sleepCtx(ctx, RetryBackoff[attempt]); err != nil {
			return domain.FetchResult{}, err
		}
	}
	return domain.FetchResult{}, lastErr
}

// normalize parses wire timestamps and constructs Post entities, dropping any whose
// timestamp lies in the future.
func (e *Engine) normalize(taskID string, raw []domain.RawPost) []domain.Post {
	now := e.Clock.Now()
	out := make([]domain.Post, 0, len(raw))
	for _, r := range raw {
		createdAt, err := parseWireTime(r.CreatedAtWire)
		if err != nil || createdAt.After(now) {
			continue
		}
		out = append(out, domain.Post{
			ID:               r.ID,
			TaskID:           taskID,
			Text:             r.Text,
			CreatedAt:        createdAt,
			AuthorUID:        r.AuthorUID,
			AuthorScreenName: r.AuthorScreenName,
			RepostsCount:     r.RepostsCount,
			CommentsCount:    r.CommentsCount,
			AttitudesCount:   r.AttitudesCount,
		})
	}
	return out
}

func parseWireTime(s string) (time.Time, error) {
	if t, err := time.Parse(WireTimeFormat, s); err == nil {
		return t.UTC(), nil
	}
	return clock.ParseWire(s)
}

// dropExisting short-circuits posts already durable for this task, as an optimization
// ahead of the store's own (task_id, id) uniqueness guarantee.
func (e *Engine) dropExisting(ctx context.Context, taskID string, posts []domain.Post) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		exists, err := e.Posts.Exists(ctx, taskID, p.ID)
		if err != nil || !exists {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) emitCompleted(ctx context.Context, taskID string, status domain.Status, started time.Time) {
	task, err := e.Tasks.Load(ctx, taskID)
	total := int64(0)
	if err == nil && task != nil {
		total = task.CrawledCount
	}
	e.Events.Completed(domain.CompletedEvent{
		TaskID:         taskID,
		FinalStatus:    status,
		TotalCrawled:   total,
		DurationSecond: e.Clock.Now().Sub(started).Seconds(),
		Timestamp:      e.Clock.Now(),
	})
}

func (e *Engine) emitError(ctx context.Context, taskID, code, message string) {
	e.Events.Error(domain.ErrorEvent{
		TaskID:    taskID,
		Code:      code,
		Message:   message,
		Timestamp: e.Clock.Now(),
	})
}

func politenessDelay() time.Duration {
	span := int64(PolitenessMax - PolitenessMin)
	return PolitenessMin + time.Duration(rand.Int63n(span+1))
}

func isCancellation(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}
