package transcripts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type (
	SQLiteRepo struct {
		db *sql.DB
	}
)

func NewSQLiteRepo(db *sql.DB) SQLiteRepo {
	return SQLiteRepo{db}
}

// Migrate creates the transcriptions table if it does not exist.
func (r SQLiteRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	create table if not exists transcriptions (
		id text primary key not null,
		name text not null,
		blake3_hash text not null,
		size_bytes integer not null default 0,
		status text not null,
		segment_count integer not null default 0,
		chunk_count integer not null default 0,
		duration_ms integer not null default 0,
		error text not null default '',
		created_at integer not null
	);

	create index if not exists transcriptions_blake3_hash on transcriptions (blake3_hash);`)
	if err != nil {
		return fmt.Errorf("migrating transcriptions: %w", err)
	}

	return nil
}

func (r SQLiteRepo) CreateTranscription(ctx context.Context, rec TranscriptionRecord) error {
	_, err := r.db.ExecContext(
		ctx,
		`insert into transcriptions (id, name, blake3_hash, size_bytes, status, created_at)
		values ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		rec.Name,
		rec.Blake3Hash,
		rec.SizeBytes,
		rec.Status,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("persisting transcription into sqlite: %w", err)
	}

	return nil
}

func (r SQLiteRepo) FinishTranscription(ctx context.Context, rec TranscriptionRecord) error {
	res, err := r.db.ExecContext(ctx, `
		update transcriptions
		set status = $1, segment_count = $2, chunk_count = $3, duration_ms = $4, error = $5
		where id = $6
	`, rec.Status, rec.SegmentCount, rec.ChunkCount, rec.DurationMs, rec.Error, rec.ID)
	if err != nil {
		return fmt.Errorf("updating transcription %s: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating transcription %s: rows affected: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("updating transcription %s: %w", rec.ID, sql.ErrNoRows)
	}

	return nil
}

func (r SQLiteRepo) GetTranscription(ctx context.Context, id string) (TranscriptionRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectTranscriptions+" where id = $1", id)
	if err != nil {
		return TranscriptionRecord{}, fmt.Errorf("get transcription: %w", err)
	}
	defer rows.Close()

	recs, err := scanTranscriptions(rows)
	if err != nil {
		return TranscriptionRecord{}, fmt.Errorf("get transcription: %w", err)
	}
	if len(recs) == 0 {
		return TranscriptionRecord{}, fmt.Errorf("get transcription %s: %w", id, sql.ErrNoRows)
	}

	return recs[0], nil
}

func (r SQLiteRepo) ListTranscriptions(ctx context.Context, limit int) ([]TranscriptionRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectTranscriptions+" order by created_at desc, rowid desc limit $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	recs, err := scanTranscriptions(rows)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}

	return recs, nil
}

const selectTranscriptions = `select
	id, name, blake3_hash, size_bytes, status, segment_count, chunk_count, duration_ms, error, created_at
	from transcriptions`

func scanTranscriptions(rows *sql.Rows) ([]TranscriptionRecord, error) {
	res := []TranscriptionRecord{}
	for rows.Next() {
		var (
			rec       TranscriptionRecord
			createdAt int64
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.Blake3Hash,
			&rec.SizeBytes,
			&rec.Status,
			&rec.SegmentCount,
			&rec.ChunkCount,
			&rec.DurationMs,
			&rec.Error,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning transcription: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcriptions: %w", err)
	}

	return res, nil
}
