package repo

import (
	"context"
	"time"

	"weibo-harvester/internal/modkit/repokit"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// PostsPG binds a Queryer to a domain.PostStore
type PostsPG struct{}

// NewPostsPG returns a Binder producing Postgres-backed PostStore instances
func NewPostsPG() repokit.Binder[domain.PostStore] { return PostsPG{} }

// Bind implements repokit.Binder
func (PostsPG) Bind(q repokit.Queryer) domain.PostStore { return &postQueries{q: q} }

type postQueries struct{ q repokit.Queryer }

// SavePosts inserts posts in one batch, idempotent per (task_id, id); duplicates are
// silently dropped via ON CONFLICT DO NOTHING, and inserted reports the survivor count.
func (p *postQueries) SavePosts(ctx context.Context, taskID string, posts []domain.Post) (int64, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	ids := make([]string, len(posts))
	texts := make([]string, len(posts))
	createdAts := make([]time.Time, len(posts))
	authorUIDs := make([]string, len(posts))
	authorNames := make([]string, len(posts))
	reposts := make([]int64, len(posts))
	comments := make([]int64, len(posts))
	attitudes := make([]int64, len(posts))

	for i, post := range posts {
		ids[i] = post.ID
		texts[i] = post.Text
		createdAts[i] = post.CreatedAt
		authorUIDs[i] = post.AuthorUID
		authorNames[i] = post.AuthorScreenName
		reposts[i] = post.RepostsCount
		comments[i] = post.CommentsCount
		attitudes[i] = post.AttitudesCount
	}

	const sql = `
		INSERT INTO posts (
			task_id, id, text, created_at, author_uid, author_screen_name,
			reposts_count, comments_count, attitudes_count
		)
		SELECT $1, * FROM unnest(
			$2::text[], $3::text[], $4::timestamptz[], $5::text[], $6::text[],
			$7::bigint[], $8::bigint[], $9::bigint[]
		)
		ON CONFLICT (task_id, id) DO NOTHING
	`
	tag, err := p.q.Exec(ctx, sql, taskID, ids, texts, createdAts, authorUIDs, authorNames, reposts, comments, attitudes)
	if err != nil {
		return 0, perr.FromPostgres(err, "save posts")
	}
	return tag.RowsAffected(), nil
}

func (p *postQueries) Exists(ctx context.Context, taskID, postID string) (bool, error) {
	const sql = `SELECT EXISTS(SELECT 1 FROM posts WHERE task_id = $1 AND id = $2)`
	var exists bool
	if err := p.q.QueryRow(ctx, sql, taskID, postID).Scan(&exists); err != nil {
		return false, perr.FromPostgres(err, "check post exists")
	}
	return exists, nil
}

func (p *postQueries) Range(ctx context.Context, taskID string, lo, hi time.Time, desc bool) ([]domain.Post, error) {
	order := "DESC"
	if !desc {
		order = "ASC"
	}
	sql := `
		SELECT id, task_id, text, created_at, author_uid, author_screen_name,
			reposts_count, comments_count, attitudes_count
		FROM posts
		WHERE task_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at ` + order

	rows, err := p.q.Query(ctx, sql, taskID, lo, hi)
	if err != nil {
		return nil, perr.FromPostgres(err, "range posts")
	}
	defer rows.Close()

	var out []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(
			&post.ID, &post.TaskID, &post.Text, &post.CreatedAt,
			&post.AuthorUID, &post.AuthorScreenName,
			&post.RepostsCount, &post.CommentsCount, &post.AttitudesCount,
		); err != nil {
			return nil, perr.FromPostgres(err, "scan post")
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "range posts")
	}
	return out, nil
}

func (p *postQueries) Count(ctx context.Context, taskID string) (int64, error) {
	const sql = `SELECT count(*) FROM posts WHERE task_id = $1`
	var n int64
	if err := p.q.QueryRow(ctx, sql, taskID).Scan(&n); err != nil {
		return 0, perr.FromPostgres(err, "count posts")
	}
	return n, nil
}

func (p *postQueries) TimeBounds(ctx context.Context, taskID string) (*time.Time, *time.Time, error) {
	const sql = `SELECT min(created_at), max(created_at) FROM posts WHERE task_id = $1`
	var min, max *time.Time
	if err := p.q.QueryRow(ctx, sql, taskID).Scan(&min, &max); err != nil {
		return nil, nil, perr.FromPostgres(err, "post time bounds")
	}
	return min, max, nil
}

func (p *postQueries) DeleteByTask(ctx context.Context, taskID string) error {
	if _, err := p.q.Exec(ctx, `DELETE FROM posts WHERE task_id = $1`, taskID); err != nil {
		return perr.FromPostgres(err, "delete posts")
	}
	return nil
}
