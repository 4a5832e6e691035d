package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/callrec/internal/pkg/migrations"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DB provides the call, upload and settings stores on postgresql
type DB struct {
	pool  *pgxpool.Pool
	hashF func(string) (string, error)
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool, hashF func(string) (string, error)) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	if hashF == nil {
		return nil, fmt.Errorf("no hash func")
	}
	return &DB{pool: pool, hashF: hashF}, nil
}

// Migrate applies schema migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrations.Up(ctx, db, goose.DialectPostgres)
}

const callFields = `call_log_id, uuid, caller_number, mobile, call_start_time, is_connected,
	call_end_time, duration_ms, is_uploaded, record_file_path`

// GetByCallLogID returns nil if no record
func (db *DB) GetByCallLogID(ctx context.Context, id int64) (*persistence.CallRecord, error) {
	res, err := scanCall(db.pool.QueryRow(ctx, `SELECT `+callFields+` FROM call_record WHERE call_log_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load call %d: %w", id, err)
	}
	return res, nil
}

// InsertCall inserts or replaces the call record. Uploaded flag never goes back to false
func (db *DB) InsertCall(ctx context.Context, rec *persistence.CallRecord) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO call_record(`+callFields+`)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (call_log_id) DO UPDATE SET
		uuid = EXCLUDED.uuid,
		caller_number = EXCLUDED.caller_number,
		mobile = EXCLUDED.mobile,
		call_start_time = EXCLUDED.call_start_time,
		is_connected = EXCLUDED.is_connected,
		call_end_time = EXCLUDED.call_end_time,
		duration_ms = EXCLUDED.duration_ms,
		is_uploaded = call_record.is_uploaded OR EXCLUDED.is_uploaded,
		record_file_path = EXCLUDED.record_file_path`,
		rec.CallLogID, rec.UUID, rec.CallerNumber, rec.Mobile, rec.CallStartTime, rec.Connected,
		rec.CallEndTime, rec.DurationMs, rec.Uploaded, rec.RecordFilePath)
	if err != nil {
		return fmt.Errorf("can't insert call %d: %w", rec.CallLogID, err)
	}
	return nil
}

// UpdateCall overwrites the call record. Uploaded flag never goes back to false
func (db *DB) UpdateCall(ctx context.Context, rec *persistence.CallRecord) error {
	res, err := db.pool.Exec(ctx, `UPDATE call_record SET
	uuid = $2,
	caller_number = $3,
	mobile = $4,
	call_start_time = $5,
	is_connected = $6,
	call_end_time = $7,
	duration_ms = $8,
	is_uploaded = is_uploaded OR $9,
	record_file_path = $10
	WHERE call_log_id = $1`, rec.CallLogID, rec.UUID, rec.CallerNumber, rec.Mobile, rec.CallStartTime,
		rec.Connected, rec.CallEndTime, rec.DurationMs, rec.Uploaded, rec.RecordFilePath)
	if err != nil {
		return fmt.Errorf("can't update call %d: %w", rec.CallLogID, err)
	}
	if res.RowsAffected() != 1 {
		return fmt.Errorf("can't update call %d, no record", rec.CallLogID)
	}
	return nil
}

// ListCalls returns calls, newest first
func (db *DB) ListCalls(ctx context.Context, limit int) ([]*persistence.CallRecord, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := db.pool.Query(ctx, `SELECT `+callFields+` FROM call_record
		ORDER BY call_start_time DESC LIMIT $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("can't list calls: %w", err)
	}
	defer rows.Close()
	res := []*persistence.CallRecord{}
	for rows.Next() {
		r, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("can't read call: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

const uploadFields = `id, file_path, file_name, file_hash, file_size, upload_time, upload_status, server_id`

// UpsertPending adds the file as PENDING if the path is new, existing status is kept
func (db *DB) UpsertPending(ctx context.Context, f *persistence.RecordFile) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `SELECT id FROM upload_records WHERE file_path = $1`, f.Path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("can't load upload %s: %w", f.Path, err)
	}
	hash, err := db.hashF(f.Path)
	if err != nil {
		return 0, err
	}
	err = db.pool.QueryRow(ctx, `INSERT INTO upload_records(file_path, file_name, file_hash, file_size, upload_time, upload_status)
	VALUES($1, $2, $3, $4, $5, $6)
	ON CONFLICT (file_path) DO UPDATE SET file_path = EXCLUDED.file_path
	RETURNING id`, f.Path, f.Name, hash, f.Size, time.Now(), status.Pending.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("can't insert upload %s: %w", f.Path, err)
	}
	return id, nil
}

// GetUpload returns nil if the path is not known
func (db *DB) GetUpload(ctx context.Context, path string) (*persistence.UploadRecord, error) {
	res, err := scanUpload(db.pool.QueryRow(ctx, `SELECT `+uploadFields+` FROM upload_records WHERE file_path = $1`, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load upload %s: %w", path, err)
	}
	return res, nil
}

// GetStatus returns PENDING for unknown paths
func (db *DB) GetStatus(ctx context.Context, path string) (status.Status, error) {
	var st string
	err := db.pool.QueryRow(ctx, `SELECT upload_status FROM upload_records WHERE file_path = $1`, path).Scan(&st)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return status.Pending, nil
		}
		return status.Pending, fmt.Errorf("can't load status %s: %w", path, err)
	}
	return status.From(st), nil
}

// Transition overwrites status and time, serverID is kept if empty
func (db *DB) Transition(ctx context.Context, path string, st status.Status, serverID string) error {
	res, err := db.pool.Exec(ctx, `UPDATE upload_records SET
	upload_status = $2,
	upload_time = $3,
	server_id = COALESCE(NULLIF($4, ''), server_id)
	WHERE file_path = $1`, path, st.String(), time.Now(), serverID)
	if err != nil {
		return fmt.Errorf("can't update status %s: %w", path, err)
	}
	if res.RowsAffected() != 1 {
		return fmt.Errorf("can't update status %s, no record", path)
	}
	return nil
}

// IsHashUploaded checks if any file with the same content was uploaded
func (db *DB) IsHashUploaded(ctx context.Context, hash string) (bool, error) {
	var res bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM upload_records WHERE file_hash = $1 AND upload_status = $2)`,
		hash, status.UploadSuccess.String()).Scan(&res); err != nil {
		return false, fmt.Errorf("can't check hash: %w", err)
	}
	return res, nil
}

// GetPending returns PENDING and UPLOAD_FAILED records, newest first
func (db *DB) GetPending(ctx context.Context) ([]*persistence.UploadRecord, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+uploadFields+` FROM upload_records
		WHERE upload_status = ANY($1) ORDER BY upload_time DESC`,
		[]string{status.Pending.String(), status.UploadFailed.String()})
	if err != nil {
		return nil, fmt.Errorf("can't list pending: %w", err)
	}
	defer rows.Close()
	res := []*persistence.UploadRecord{}
	for rows.Next() {
		r, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("can't read upload: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// GetSetting returns "" if the key is not set
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var res string
	if err := db.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&res); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("can't get setting %s: %w", key, err)
	}
	return res, nil
}

// SetSetting stores value
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	if _, err := db.pool.Exec(ctx, `INSERT INTO settings(key, value) VALUES($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value); err != nil {
		return fmt.Errorf("can't set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes the key
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("can't delete setting %s: %w", key, err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'call_record')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

func scanCall(row pgx.Row) (*persistence.CallRecord, error) {
	var res persistence.CallRecord
	if err := row.Scan(&res.CallLogID, &res.UUID, &res.CallerNumber, &res.Mobile, &res.CallStartTime, &res.Connected,
		&res.CallEndTime, &res.DurationMs, &res.Uploaded, &res.RecordFilePath); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanUpload(row pgx.Row) (*persistence.UploadRecord, error) {
	var res persistence.UploadRecord
	var st string
	if err := row.Scan(&res.ID, &res.FilePath, &res.FileName, &res.FileHash, &res.FileSize, &res.Updated, &st, &res.ServerID); err != nil {
		return nil, err
	}
	res.Status = status.From(st)
	return &res, nil
}

