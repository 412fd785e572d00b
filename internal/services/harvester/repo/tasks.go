// Package repo holds the Postgres-backed implementations of the harvester's domain ports
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"weibo-harvester/internal/modkit/repokit"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// TasksPG binds a Queryer to a domain.TaskStore
type TasksPG struct{}

// NewTasksPG returns a Binder producing Postgres-backed TaskStore instances
func NewTasksPG() repokit.Binder[domain.TaskStore] { return TasksPG{} }

// Bind implements repokit.Binder
func (TasksPG) Bind(q repokit.Queryer) domain.TaskStore { return &taskQueries{q: q} }

type taskQueries struct{ q repokit.Queryer }

func (t *taskQueries) Create(ctx context.Context, task *domain.Task) error {
	const sql = `
		INSERT INTO tasks (
			id, keyword, uid, event_start_time, status,
			min_post_time, max_post_time, crawled_count,
			created_at, updated_at, failure_reason, last_direction
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err := t.q.Exec(ctx, sql,
		task.ID, task.Keyword, task.UID, task.EventStartTime, task.Status,
		task.MinPostTime, task.MaxPostTime, task.CrawledCount,
		task.CreatedAt, task.UpdatedAt, task.FailureReason, string(task.LastDirection),
	)
	if err != nil {
		return perr.FromPostgresWithField(err, "create task")
	}
	return nil
}

func (t *taskQueries) Load(ctx context.Context, id string) (*domain.Task, error) {
	const sql = `
		SELECT id, keyword, uid, event_start_time, status,
			min_post_time, max_post_time, crawled_count,
			created_at, updated_at, failure_reason, last_direction
		FROM tasks WHERE id = $1
	`
	row := t.q.QueryRow(ctx, sql, id)
	task := &domain.Task{}
	var lastDir string
	if err := row.Scan(
		&task.ID, &task.Keyword, &task.UID, &task.EventStartTime, &task.Status,
		&task.MinPostTime, &task.MaxPostTime, &task.CrawledCount,
		&task.CreatedAt, &task.UpdatedAt, &task.FailureReason, &lastDir,
	); err != nil {
		return nil, perr.TaskNotFoundf("task %s not found", id)
	}
	task.LastDirection = domain.Direction(lastDir)
	return task, nil
}

func (t *taskQueries) List(ctx context.Context, opts domain.ListOptions) ([]*domain.Task, int, error) {
	var (
		where []string
		args  []any
	)
	if opts.Filter.Status != nil {
		args = append(args, *opts.Filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	sortCol := "created_at"
	switch opts.SortBy {
	case domain.SortByUpdatedAt:
		sortCol = "updated_at"
	case domain.SortByCrawledCount:
		sortCol = "crawled_count"
	}
	order := "DESC"
	if opts.Order == domain.SortAsc {
		order = "ASC"
	}

	countSQL := "SELECT count(*) FROM tasks " + whereSQL
	var total int
	if err := t.q.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, perr.FromPostgres(err, "count tasks")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)
	listSQL := fmt.Sprintf(`
		SELECT id, keyword, uid, event_start_time, status,
			min_post_time, max_post_time, crawled_count,
			created_at, updated_at, failure_reason, last_direction
		FROM tasks %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereSQL, sortCol, order, len(args)-1, len(args))

	rows, err := t.q.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, perr.FromPostgres(err, "list tasks")
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		task := &domain.Task{}
		var lastDir string
		if err := rows.Scan(
			&task.ID, &task.Keyword, &task.UID, &task.EventStartTime, &task.Status,
			&task.MinPostTime, &task.MaxPostTime, &task.CrawledCount,
			&task.CreatedAt, &task.UpdatedAt, &task.FailureReason, &lastDir,
		); err != nil {
			return nil, 0, perr.FromPostgres(err, "scan task")
		}
		task.LastDirection = domain.Direction(lastDir)
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, perr.FromPostgres(err, "list tasks")
	}
	return out, total, nil
}

func (t *taskQueries) UpdateStatus(ctx context.Context, id string, status domain.Status, failureReason *string, direction domain.Direction) error {
	const sql = `
		UPDATE tasks
		SET status = $2, failure_reason = $3, last_direction = COALESCE(NULLIF($4, ''), last_direction), updated_at = now()
		WHERE id = $1
	`
	tag, err := t.q.Exec(ctx, sql, id, status, failureReason, string(direction))
	if err != nil {
		return perr.FromPostgres(err, "update task status")
	}
	if tag.RowsAffected() == 0 {
		return perr.TaskNotFoundf("task %s not found", id)
	}
	return nil
}

func (t *taskQueries) UpdateProgress(ctx context.Context, id string, postTime time.Time, addedCount int64) error {
	const sql = `
		UPDATE tasks
		SET
			min_post_time = LEAST(COALESCE(min_post_time, $2), $2),
			max_post_time = GREATEST(COALESCE(max_post_time, $2), $2),
			crawled_count = crawled_count + $3,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := t.q.Exec(ctx, sql, id, postTime, addedCount)
	if err != nil {
		return perr.FromPostgres(err, "update task progress")
	}
	if tag.RowsAffected() == 0 {
		return perr.TaskNotFoundf("task %s not found", id)
	}
	return nil
}

func (t *taskQueries) Delete(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return perr.FromPostgres(err, "delete task")
	}
	if tag.RowsAffected() == 0 {
		return perr.TaskNotFoundf("task %s not found", id)
	}
	return nil
}
