// Package scheduler owns the single-active-task invariant, the task state machine,
// and the translation of external commands into engine lifecycle actions.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"weibo-harvester/internal/platform/clock"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/platform/logger"
	"weibo-harvester/internal/services/harvester/domain"
	"weibo-harvester/internal/services/harvester/engine"
	"weibo-harvester/internal/services/harvester/export"
)

// Scheduler enforces single-active-task policy, validates task-state transitions,
// orchestrates engine lifecycle, and translates external commands into engine actions.
type Scheduler struct {
	Tasks       domain.TaskStore
	Posts       domain.PostStore
	Checkpoints domain.CheckpointStore
	Snapshots   domain.CredentialSnapshotStore
	Creds       domain.CredentialStore
	Fetcher     domain.Fetcher
	Events      domain.EventEmitter
	Clock       clock.Clock

	// ExportDir is the directory export files land in. Defaults to the process's
	// working directory when empty; callers needing a stable location should set it.
	ExportDir string

	mu         sync.Mutex
	activeTask string
	cancels    map[string]context.CancelFunc

	log *logger.Logger
}

// New wires a Scheduler from its store and adapter dependencies
func New(tasks domain.TaskStore, posts domain.PostStore, checkpoints domain.CheckpointStore,
	snapshots domain.CredentialSnapshotStore, creds domain.CredentialStore, fetcher domain.Fetcher,
	events domain.EventEmitter, clk clock.Clock) *Scheduler {
	return &Scheduler{
		Tasks:       tasks,
		Posts:       posts,
		Checkpoints: checkpoints,
		Snapshots:   snapshots,
		Creds:       creds,
		Fetcher:     fetcher,
		Events:      events,
		Clock:       clk,
		cancels:     map[string]context.CancelFunc{},
		log:         logger.Named("harvester.scheduler"),
	}
}

// CreateTask validates the keyword, the event start time, and credential freshness,
// then persists a task in Created and snapshots credentials under the task id. The
// snapshot is immutable from here on: start_crawl reads it back rather than
// re-querying Creds, so a later cookie rotation never changes what this task runs with.
func (s *Scheduler) CreateTask(ctx context.Context, keyword string, eventStartTime time.Time, uid string) (*domain.Task, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, perr.InvalidKeywordf("keyword must not be empty")
	}

	now := s.Clock.Now()
	if !eventStartTime.Before(now) {
		return nil, perr.InvalidTimef("event_start_time must be strictly in the past")
	}

	creds, err := s.Creds.Query(ctx, uid)
	if err != nil {
		return nil, perr.CookiesNotFoundf("no saved cookies for uid %s", uid)
	}
	if !creds.Fresh(now) {
		return nil, perr.CookiesExpiredf("cookies for uid %s expired at %s", uid, creds.ValidatedAt.Add(domain.CredentialsFreshnessWindow))
	}

	task := &domain.Task{
		ID:             uuid.NewString(),
		Keyword:        keyword,
		UID:            uid,
		EventStartTime: eventStartTime,
		Status:         domain.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Tasks.Create(ctx, task); err != nil {
		return nil, perr.Storagef("create task: %v", err)
	}
	if err := s.Snapshots.Save(ctx, task.ID, creds); err != nil {
		_ = s.Tasks.Delete(ctx, task.ID)
		return nil, perr.Storagef("snapshot credentials: %v", err)
	}
	return task, nil
}

// StartCrawl dispatches on the task's current status, launches the engine on a
// background goroutine, and enforces the single-active-task invariant.
func (s *Scheduler) StartCrawl(ctx context.Context, taskID string) (message string, direction domain.Direction, err error) {
	task, err := s.Tasks.Load(ctx, taskID)
	if err != nil {
		return "", "", perr.TaskNotFoundf("task %s not found", taskID)
	}

	var plan []domain.Shard
	var forwardWindow domain.Shard
	var dir domain.Direction
	var fromStatus = task.Status

	switch task.Status {
	case domain.StatusCreated, domain.StatusFailed:
		dir = domain.DirectionBackward
		plan = s.planBackward(ctx, task)
	case domain.StatusPaused:
		if task.LastDirection == domain.DirectionForward {
			dir = domain.DirectionForward
			forwardWindow = s.forwardWindow(task)
		} else {
			dir = domain.DirectionBackward
			plan = s.resumeBackward(ctx, task)
		}
	case domain.StatusHistoryCompleted:
		dir = domain.DirectionForward
		forwardWindow = s.forwardWindow(task)
	case domain.StatusHistoryCrawling, domain.StatusIncrementalCrawling:
		return "", "", perr.AlreadyRunningf("task %s is already running", taskID)
	default:
		return "", "", perr.InvalidStatusf("cannot start_crawl from status %s", task.Status)
	}

	toStatus := domain.StatusHistoryCrawling
	if dir == domain.DirectionForward {
		toStatus = domain.StatusIncrementalCrawling
	}
	if !domain.CanTransition(fromStatus, toStatus) {
		return "", "", perr.InvalidStatusf("cannot transition %s -> %s", fromStatus, toStatus)
	}

	creds, err := s.Snapshots.Load(ctx, taskID)
	if err != nil {
		return "", "", err
	}

	if err := s.acquireActiveSlot(taskID); err != nil {
		return "", "", err
	}

	if err := s.Tasks.UpdateStatus(ctx, taskID, toStatus, nil, dir); err != nil {
		s.releaseActiveSlot(taskID)
		return "", "", perr.Storagef("transition task: %v", err)
	}
	task.Status = toStatus
	task.LastDirection = dir

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[taskID] = cancel
	s.mu.Unlock()

	eng := engine.NewEngine(s.Tasks, s.Posts, s.Checkpoints, s.Fetcher, s.Events, s.Clock)

	go func() {
		defer s.releaseActiveSlot(taskID)
		var runErr error
		if dir == domain.DirectionBackward {
			runErr = eng.RunBackward(runCtx, task, creds, plan)
		} else {
			runErr = eng.RunForward(runCtx, task, creds, forwardWindow)
		}
		if runErr != nil {
			s.log.Error().Str("task_id", taskID).Err(runErr).Msg("crawl run ended with error")
		}
	}()

	if dir == domain.DirectionBackward {
		return "history crawl started", dir, nil
	}
	return "incremental crawl started", dir, nil
}

// PauseCrawl signals the engine's cancellation token, transitions to Paused, and
// returns the checkpoint snapshot.
func (s *Scheduler) PauseCrawl(ctx context.Context, taskID string) (string, *domain.Checkpoint, error) {
	task, err := s.Tasks.Load(ctx, taskID)
	if err != nil {
		return "", nil, perr.TaskNotFoundf("task %s not found", taskID)
	}
	if task.Status != domain.StatusHistoryCrawling && task.Status != domain.StatusIncrementalCrawling {
		return "", nil, perr.InvalidStatusf("cannot pause_crawl from status %s", task.Status)
	}

	if err := s.Tasks.UpdateStatus(ctx, taskID, domain.StatusPaused, nil, task.LastDirection); err != nil {
		return "", nil, perr.Storagef("transition task: %v", err)
	}

	s.mu.Lock()
	cancel := s.cancels[taskID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	cp, _ := s.Checkpoints.Load(ctx, taskID)
	return "pause requested", cp, nil
}

// ProgressDoc carries task fields plus the checkpoint, if any, plus a derived estimate.
type ProgressDoc struct {
	Task              *domain.Task
	Checkpoint        *domain.Checkpoint
	EstimatedProgress float64
}

// GetProgress implements the get_progress command
func (s *Scheduler) GetProgress(ctx context.Context, taskID string) (*ProgressDoc, error) {
	task, err := s.Tasks.Load(ctx, taskID)
	if err != nil {
		return nil, perr.TaskNotFoundf("task %s not found", taskID)
	}
	cp, _ := s.Checkpoints.Load(ctx, taskID)
	return &ProgressDoc{
		Task:              task,
		Checkpoint:        cp,
		EstimatedProgress: estimateProgress(task, s.Clock.Now()),
	}, nil
}

// estimateProgress ratios elapsed coverage (now - min_post_time) against the full
// window back to event_start_time, clamped to [0,99] mid-sweep, 0 while Created,
// 100 once HistoryCompleted or later.
func estimateProgress(t *domain.Task, now time.Time) float64 {
	switch t.Status {
	case domain.StatusCreated:
		return 0
	case domain.StatusHistoryCompleted, domain.StatusIncrementalCrawling:
		return 100
	}
	if t.MinPostTime == nil {
		return 0
	}
	total := now.Sub(t.EventStartTime)
	if total <= 0 {
		return 99
	}
	done := now.Sub(*t.MinPostTime)
	pct := done.Seconds() / total.Seconds() * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	return pct
}

// ListTasks passes filter/sort/pagination through to the task store
func (s *Scheduler) ListTasks(ctx context.Context, opts domain.ListOptions) ([]*domain.Task, int, error) {
	tasks, total, err := s.Tasks.List(ctx, opts)
	if err != nil {
		return nil, 0, perr.Storagef("list tasks: %v", err)
	}
	return tasks, total, nil
}

// Export streams a task's posts in the optional time_range to a file under ExportDir,
// defaulting to [min_post_time, max_post_time] when no range is given.
func (s *Scheduler) Export(ctx context.Context, taskID string, format export.Format, lo, hi *time.Time) (export.FileResult, error) {
	task, err := s.Tasks.Load(ctx, taskID)
	if err != nil {
		return export.FileResult{}, perr.TaskNotFoundf("task %s not found", taskID)
	}
	if task.CrawledCount == 0 {
		return export.FileResult{}, perr.NoDataf("task %s has no collected posts", taskID)
	}

	rangeLo, rangeHi := task.MinPostTime, task.MaxPostTime
	if lo != nil {
		rangeLo = lo
	}
	if hi != nil {
		rangeHi = hi
	}
	if rangeLo == nil || rangeHi == nil || rangeLo.After(*rangeHi) {
		return export.FileResult{}, perr.InvalidTimef("time_range must satisfy lo <= hi")
	}

	posts, err := s.Posts.Range(ctx, taskID, *rangeLo, *rangeHi, false)
	if err != nil {
		return export.FileResult{}, perr.Storagef("range posts: %v", err)
	}
	if len(posts) == 0 {
		return export.FileResult{}, perr.NoDataf("task %s has no posts in the requested range", taskID)
	}

	dir := s.ExportDir
	if dir == "" {
		dir = "."
	}
	return export.ToFile(dir, export.Request{
		TaskID:     taskID,
		Keyword:    task.Keyword,
		Posts:      posts,
		ExportedAt: s.Clock.Now(),
	}, format)
}

// DeleteTask cancels the run if active, then deletes posts, checkpoint, and task.
func (s *Scheduler) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.Tasks.Load(ctx, taskID); err != nil {
		return perr.TaskNotFoundf("task %s not found", taskID)
	}

	s.mu.Lock()
	cancel := s.cancels[taskID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if err := s.Posts.DeleteByTask(ctx, taskID); err != nil {
		return perr.Storagef("delete posts: %v", err)
	}
	if err := s.Checkpoints.Delete(ctx, taskID); err != nil {
		return perr.Storagef("delete checkpoint: %v", err)
	}
	if err := s.Snapshots.Delete(ctx, taskID); err != nil {
		return perr.Storagef("delete credentials snapshot: %v", err)
	}
	if err := s.Tasks.Delete(ctx, taskID); err != nil {
		return perr.Storagef("delete task: %v", err)
	}
	return nil
}

func (s *Scheduler) acquireActiveSlot(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTask != "" {
		return perr.AlreadyRunningf("task %s is active; only one crawl may run at a time", s.activeTask)
	}
	s.activeTask = taskID
	return nil
}

func (s *Scheduler) releaseActiveSlot(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTask == taskID {
		s.activeTask = ""
	}
	delete(s.cancels, taskID)
}

func (s *Scheduler) planBackward(ctx context.Context, task *domain.Task) []domain.Shard {
	sharder := engine.NewSharder(s.Fetcher, domain.Credentials{})
	return sharder.Plan(ctx, task.Keyword, task.EventStartTime, s.Clock.Now())
}

func (s *Scheduler) resumeBackward(ctx context.Context, task *domain.Task) []domain.Shard {
	plan := s.planBackward(ctx, task)
	cp, _ := s.Checkpoints.Load(ctx, task.ID)
	if cp == nil {
		return plan
	}
	return engine.RemovingCompleted(plan, cp.CompletedShards)
}

func (s *Scheduler) forwardWindow(task *domain.Task) domain.Shard {
	start := task.EventStartTime
	if task.MaxPostTime != nil {
		start = clock.CeilHour(*task.MaxPostTime)
	}
	return domain.Shard{Start: start, End: clock.CeilHour(s.Clock.Now())}
}

// ActiveTask reports the currently active task id, or "" if none (diagnostic use only)
func (s *Scheduler) ActiveTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTask
}
