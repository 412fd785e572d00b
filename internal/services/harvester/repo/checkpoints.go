package repo

import (
	"context"
	"encoding/json"

	"weibo-harvester/internal/modkit/repokit"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// CheckpointsPG binds a Queryer to a domain.CheckpointStore
type CheckpointsPG struct{}

// NewCheckpointsPG returns a Binder producing Postgres-backed CheckpointStore instances
func NewCheckpointsPG() repokit.Binder[domain.CheckpointStore] { return CheckpointsPG{} }

// Bind implements repokit.Binder
func (CheckpointsPG) Bind(q repokit.Queryer) domain.CheckpointStore { return &checkpointQueries{q: q} }

type checkpointQueries struct{ q repokit.Queryer }

// Save is a full overwrite, no partial updates, per the checkpoint's at-most-one-per-task contract.
func (c *checkpointQueries) Save(ctx context.Context, cp domain.Checkpoint) error {
	shardsJSON, err := json.Marshal(cp.CompletedShards)
	if err != nil {
		return perr.Storagef("encode completed shards: %v", err)
	}
	const sql = `
		INSERT INTO checkpoints (
			task_id, direction, shard_start_time, shard_end_time,
			current_page, completed_shards, saved_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (task_id) DO UPDATE SET
			direction = EXCLUDED.direction,
			shard_start_time = EXCLUDED.shard_start_time,
			shard_end_time = EXCLUDED.shard_end_time,
			current_page = EXCLUDED.current_page,
			completed_shards = EXCLUDED.completed_shards,
			saved_at = EXCLUDED.saved_at
	`
	if _, err := c.q.Exec(ctx, sql,
		cp.TaskID, string(cp.Direction), cp.ShardStart, cp.ShardEnd,
		cp.CurrentPage, shardsJSON, cp.SavedAt,
	); err != nil {
		return perr.FromPostgres(err, "save checkpoint")
	}
	return nil
}

func (c *checkpointQueries) Load(ctx context.Context, taskID string) (*domain.Checkpoint, error) {
	const sql = `
		SELECT task_id, direction, shard_start_time, shard_end_time,
			current_page, completed_shards, saved_at
		FROM checkpoints WHERE task_id = $1
	`
	var (
		cp         domain.Checkpoint
		direction  string
		shardsJSON []byte
	)
	row := c.q.QueryRow(ctx, sql, taskID)
	if err := row.Scan(
		&cp.TaskID, &direction, &cp.ShardStart, &cp.ShardEnd,
		&cp.CurrentPage, &shardsJSON, &cp.SavedAt,
	); err != nil {
		return nil, nil
	}
	cp.Direction = domain.Direction(direction)
	if len(shardsJSON) > 0 {
		if err := json.Unmarshal(shardsJSON, &cp.CompletedShards); err != nil {
			return nil, perr.Storagef("decode completed shards: %v", err)
		}
	}
	return &cp, nil
}

func (c *checkpointQueries) Delete(ctx context.Context, taskID string) error {
	if _, err := c.q.Exec(ctx, `DELETE FROM checkpoints WHERE task_id = $1`, taskID); err != nil {
		return perr.FromPostgres(err, "delete checkpoint")
	}
	return nil
}
