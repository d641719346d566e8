package did

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type (
	Talk struct {
		ID        string    `json:"id"`
		Script    string    `json:"script"`
		Status    string    `json:"status"`
		ResultURL string    `json:"result_url,omitempty"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	SQLiteRepo struct {
		db *sql.DB
	}
)

func NewSQLiteRepo(db *sql.DB) SQLiteRepo {
	return SQLiteRepo{db}
}

func (r SQLiteRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	create table if not exists talks (
		id text primary key not null,
		script text not null default '',
		status text not null default '',
		result_url text not null default '',
		created_at integer not null,
		updated_at integer not null
	);`)
	if err != nil {
		return fmt.Errorf("migrating talks: %w", err)
	}

	return nil
}

func (r SQLiteRepo) CreateTalk(ctx context.Context, t Talk) error {
	_, err := r.db.ExecContext(
		ctx,
		`insert into talks (id, script, status, result_url, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $5)
		on conflict (id) do nothing`,
		t.ID,
		t.Script,
		t.Status,
		t.ResultURL,
		t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("persisting talk into sqlite: %w", err)
	}

	return nil
}

// UpdateTalk records the latest status and result URL, creating the row when
// the talk was started elsewhere. Empty values keep what is stored.
func (r SQLiteRepo) UpdateTalk(ctx context.Context, id, status, resultURL string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		insert into talks (id, status, result_url, created_at, updated_at)
		values ($1, $2, $3, $4, $4)
		on conflict (id) do update set
			status = case when excluded.status = '' then talks.status else excluded.status end,
			result_url = case when excluded.result_url = '' then talks.result_url else excluded.result_url end,
			updated_at = excluded.updated_at
	`, id, status, resultURL, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("updating talk %s: %w", id, err)
	}

	return nil
}

func (r SQLiteRepo) GetTalk(ctx context.Context, id string) (Talk, error) {
	var (
		res                  Talk
		createdAt, updatedAt int64
	)

	err := r.db.
		QueryRowContext(
			ctx,
			"select id, script, status, result_url, created_at, updated_at from talks where id = $1",
			id,
		).
		Scan(&res.ID, &res.Script, &res.Status, &res.ResultURL, &createdAt, &updatedAt)
	if err != nil {
		return res, fmt.Errorf("get talk: %w", err)
	}

	res.CreatedAt = time.UnixMilli(createdAt).UTC()
	res.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return res, nil
}
