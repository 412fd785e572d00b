//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"weibo-harvester/internal/platform/logger"
	"weibo-harvester/internal/platform/store"
	"weibo-harvester/internal/services/harvester/domain"
)

// startPostgres launches a disposable Postgres and returns DSN + stop func
func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mp.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

const schemaSQL = `
CREATE TABLE tasks (
	id text PRIMARY KEY,
	keyword text NOT NULL,
	uid text NOT NULL,
	event_start_time timestamptz NOT NULL,
	status text NOT NULL,
	min_post_time timestamptz,
	max_post_time timestamptz,
	crawled_count bigint NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	failure_reason text,
	last_direction text NOT NULL DEFAULT ''
);

CREATE TABLE posts (
	task_id text NOT NULL,
	id text NOT NULL,
	text text NOT NULL,
	created_at timestamptz NOT NULL,
	author_uid text NOT NULL,
	author_screen_name text NOT NULL,
	reposts_count bigint NOT NULL DEFAULT 0,
	comments_count bigint NOT NULL DEFAULT 0,
	attitudes_count bigint NOT NULL DEFAULT 0,
	PRIMARY KEY (task_id, id)
);

CREATE TABLE checkpoints (
	task_id text PRIMARY KEY,
	direction text NOT NULL,
	shard_start_time timestamptz NOT NULL,
	shard_end_time timestamptz NOT NULL,
	current_page int NOT NULL,
	completed_shards jsonb NOT NULL DEFAULT '[]',
	saved_at timestamptz NOT NULL
);

CREATE TABLE credential_snapshots (
	task_id text PRIMARY KEY,
	uid text NOT NULL,
	cookies jsonb NOT NULL DEFAULT '{}',
	validated_at timestamptz NOT NULL
);
`

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn, stop := startPostgres(t)
	t.Cleanup(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 4},
	}, store.WithLogger(*logger.Get()))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	if _, err := st.PG.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return st
}

func TestTasksPG_CreateLoadUpdateDelete_Integration(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tasks := NewTasksPG().Bind(st.PG)

	now := time.Now().UTC().Truncate(time.Second)
	task := &domain.Task{
		ID:             "task-1",
		Keyword:        "holiday",
		UID:            "u1",
		EventStartTime: now.Add(-48 * time.Hour),
		Status:         domain.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := tasks.Load(ctx, task.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Keyword != "holiday" || loaded.UID != "u1" {
		t.Fatalf("loaded task mismatch: %+v", loaded)
	}

	if err := tasks.UpdateStatus(ctx, task.ID, domain.StatusHistoryCrawling, nil, domain.DirectionBackward); err != nil {
		t.Fatalf("update status: %v", err)
	}
	loaded, err = tasks.Load(ctx, task.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Status != domain.StatusHistoryCrawling {
		t.Fatalf("status not updated: %s", loaded.Status)
	}

	postTime := now.Add(-24 * time.Hour)
	if err := tasks.UpdateProgress(ctx, task.ID, postTime, 5); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	loaded, err = tasks.Load(ctx, task.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.CrawledCount != 5 {
		t.Fatalf("crawled count = %d, want 5", loaded.CrawledCount)
	}

	if err := tasks.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tasks.Load(ctx, task.ID); err == nil {
		t.Fatalf("expected error loading deleted task")
	}
}

func TestPostsPG_SaveRangeDedupe_Integration(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tasks := NewTasksPG().Bind(st.PG)
	posts := NewPostsPG().Bind(st.PG)

	now := time.Now().UTC().Truncate(time.Second)
	task := &domain.Task{
		ID: "task-2", Keyword: "kw", UID: "u1",
		EventStartTime: now.Add(-48 * time.Hour), Status: domain.StatusCreated,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	p := domain.Post{ID: "p1", TaskID: task.ID, Text: "hello", CreatedAt: now.Add(-time.Hour)}
	inserted, err := posts.SavePosts(ctx, task.ID, []domain.Post{p})
	if err != nil {
		t.Fatalf("save posts: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}

	// re-saving the same id is a no-op
	inserted, err = posts.SavePosts(ctx, task.ID, []domain.Post{p})
	if err != nil {
		t.Fatalf("save posts (dup): %v", err)
	}
	if inserted != 0 {
		t.Fatalf("inserted on dup = %d, want 0", inserted)
	}

	exists, err := posts.Exists(ctx, task.ID, "p1")
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}

	got, err := posts.Range(ctx, task.ID, now.Add(-2*time.Hour), now, false)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("range mismatch: %+v", got)
	}

	count, err := posts.Count(ctx, task.ID)
	if err != nil || count != 1 {
		t.Fatalf("count = %d, %v", count, err)
	}

	if err := posts.DeleteByTask(ctx, task.ID); err != nil {
		t.Fatalf("delete by task: %v", err)
	}
	count, err = posts.Count(ctx, task.ID)
	if err != nil || count != 0 {
		t.Fatalf("count after delete = %d, %v", count, err)
	}
}

func TestCheckpointsPG_SaveLoadOverwriteDelete_Integration(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tasks := NewTasksPG().Bind(st.PG)
	checkpoints := NewCheckpointsPG().Bind(st.PG)

	now := time.Now().UTC().Truncate(time.Second)
	task := &domain.Task{
		ID: "task-3", Keyword: "kw", UID: "u1",
		EventStartTime: now.Add(-48 * time.Hour), Status: domain.StatusCreated,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	cp := domain.Checkpoint{
		TaskID: task.ID, Direction: domain.DirectionBackward,
		ShardStart: now.Add(-2 * time.Hour), ShardEnd: now.Add(-time.Hour),
		CurrentPage: 3, SavedAt: now,
	}
	if err := checkpoints.Save(ctx, cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := checkpoints.Load(ctx, task.ID)
	if err != nil || loaded == nil {
		t.Fatalf("load: %v, %v", loaded, err)
	}
	if loaded.CurrentPage != 3 {
		t.Fatalf("current page = %d, want 3", loaded.CurrentPage)
	}

	// overwrite, not a second row, per the at-most-one-per-task contract
	cp.CurrentPage = 4
	if err := checkpoints.Save(ctx, cp); err != nil {
		t.Fatalf("save overwrite: %v", err)
	}
	loaded, err = checkpoints.Load(ctx, task.ID)
	if err != nil || loaded.CurrentPage != 4 {
		t.Fatalf("overwrite not applied: %+v, %v", loaded, err)
	}

	if err := checkpoints.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, err = checkpoints.Load(ctx, task.ID)
	if err != nil {
		t.Fatalf("load after delete returned error instead of nil: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil checkpoint after delete, got %+v", loaded)
	}
}

func TestCredentialSnapshotsPG_SaveLoadOverwriteDelete_Integration(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tasks := NewTasksPG().Bind(st.PG)
	snapshots := NewCredentialSnapshotsPG().Bind(st.PG)

	now := time.Now().UTC().Truncate(time.Second)
	task := &domain.Task{
		ID: "task-4", Keyword: "kw", UID: "u1",
		EventStartTime: now.Add(-48 * time.Hour), Status: domain.StatusCreated,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	creds := domain.Credentials{UID: "u1", Cookies: map[string]string{"SUB": "abc"}, ValidatedAt: now}
	if err := snapshots.Save(ctx, task.ID, creds); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := snapshots.Load(ctx, task.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Cookies["SUB"] != "abc" {
		t.Fatalf("loaded snapshot mismatch: %+v", loaded)
	}

	// overwrite, not a second row
	creds.Cookies["SUB"] = "xyz"
	if err := snapshots.Save(ctx, task.ID, creds); err != nil {
		t.Fatalf("save overwrite: %v", err)
	}
	loaded, err = snapshots.Load(ctx, task.ID)
	if err != nil || loaded.Cookies["SUB"] != "xyz" {
		t.Fatalf("overwrite not applied: %+v, %v", loaded, err)
	}

	if err := snapshots.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := snapshots.Load(ctx, task.ID); err == nil {
		t.Fatalf("expected error loading deleted snapshot")
	}
}
