package repo

import (
	"context"
	"encoding/json"

	"weibo-harvester/internal/modkit/repokit"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// CredentialSnapshotsPG binds a Queryer to a domain.CredentialSnapshotStore
type CredentialSnapshotsPG struct{}

// NewCredentialSnapshotsPG returns a Binder producing Postgres-backed CredentialSnapshotStore instances
func NewCredentialSnapshotsPG() repokit.Binder[domain.CredentialSnapshotStore] { return CredentialSnapshotsPG{} }

// Bind implements repokit.Binder
func (CredentialSnapshotsPG) Bind(q repokit.Queryer) domain.CredentialSnapshotStore {
	return &credentialSnapshotQueries{q: q}
}

type credentialSnapshotQueries struct{ q repokit.Queryer }

// Save is a full overwrite, one row per task, matching the snapshot's at-most-one-per-task contract.
func (c *credentialSnapshotQueries) Save(ctx context.Context, taskID string, creds domain.Credentials) error {
	cookiesJSON, err := json.Marshal(creds.Cookies)
	if err != nil {
		return perr.Storagef("encode credentials snapshot: %v", err)
	}
	const sql = `
		INSERT INTO credential_snapshots (task_id, uid, cookies, validated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (task_id) DO UPDATE SET
			uid = EXCLUDED.uid,
			cookies = EXCLUDED.cookies,
			validated_at = EXCLUDED.validated_at
	`
	if _, err := c.q.Exec(ctx, sql, taskID, creds.UID, cookiesJSON, creds.ValidatedAt); err != nil {
		return perr.FromPostgres(err, "save credentials snapshot")
	}
	return nil
}

func (c *credentialSnapshotQueries) Load(ctx context.Context, taskID string) (domain.Credentials, error) {
	const sql = `SELECT uid, cookies, validated_at FROM credential_snapshots WHERE task_id = $1`
	var (
		creds       domain.Credentials
		cookiesJSON []byte
	)
	row := c.q.QueryRow(ctx, sql, taskID)
	if err := row.Scan(&creds.UID, &cookiesJSON, &creds.ValidatedAt); err != nil {
		return domain.Credentials{}, perr.CookiesNotFoundf("no credentials snapshot for task %s", taskID)
	}
	if len(cookiesJSON) > 0 {
		if err := json.Unmarshal(cookiesJSON, &creds.Cookies); err != nil {
			return domain.Credentials{}, perr.Storagef("decode credentials snapshot: %v", err)
		}
	}
	return creds, nil
}

func (c *credentialSnapshotQueries) Delete(ctx context.Context, taskID string) error {
	if _, err := c.q.Exec(ctx, `DELETE FROM credential_snapshots WHERE task_id = $1`, taskID); err != nil {
		return perr.FromPostgres(err, "delete credentials snapshot")
	}
	return nil
}
