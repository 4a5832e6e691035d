package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/callrec/internal/pkg/migrations"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// DB provides the call, upload and settings stores on sqlite
type DB struct {
	db     *sql.DB
	hashF  func(string) (string, error)
	nowF   func() time.Time
	closeF func() error
}

// Open opens sqlite db file (or ":memory:") and applies migrations
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("no dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open %s: %w", dsn, err)
	}
	// one writer, also keeps a single in memory db
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't set pragma: %w", err)
	}
	if err := migrations.Up(ctx, db, goose.DialectSQLite3); err != nil {
		_ = db.Close()
		return nil, err
	}
	goapp.Log.Info().Str("dsn", dsn).Msg("sqlite ready")
	res := NewDB(db)
	res.closeF = db.Close
	return res, nil
}

// NewDB wraps initialized sql db
func NewDB(db *sql.DB) *DB {
	return &DB{db: db, hashF: utils.FileHash, nowF: time.Now, closeF: func() error { return nil }}
}

// Close closes db if it was opened by Open
func (db *DB) Close() error {
	return db.closeF()
}

// Live checks db connection
func (db *DB) Live(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

const callFields = `call_log_id, uuid, caller_number, mobile, call_start_time, is_connected,
	call_end_time, duration_ms, is_uploaded, record_file_path`

// GetByCallLogID returns nil if no record
func (db *DB) GetByCallLogID(ctx context.Context, id int64) (*persistence.CallRecord, error) {
	res, err := scanCall(db.db.QueryRowContext(ctx, `SELECT `+callFields+` FROM call_record WHERE call_log_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't load call %d: %w", id, err)
	}
	return res, nil
}

// InsertCall inserts or replaces the call record. Uploaded flag never goes back to false
func (db *DB) InsertCall(ctx context.Context, rec *persistence.CallRecord) error {
	_, err := db.db.ExecContext(ctx, `INSERT INTO call_record (`+callFields+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(call_log_id) DO UPDATE SET
		uuid = excluded.uuid,
		caller_number = excluded.caller_number,
		mobile = excluded.mobile,
		call_start_time = excluded.call_start_time,
		is_connected = excluded.is_connected,
		call_end_time = excluded.call_end_time,
		duration_ms = excluded.duration_ms,
		is_uploaded = MAX(call_record.is_uploaded, excluded.is_uploaded),
		record_file_path = excluded.record_file_path`,
		rec.CallLogID, rec.UUID, rec.CallerNumber, rec.Mobile, rec.CallStartTime, utils.BoolToInt(rec.Connected),
		rec.CallEndTime, rec.DurationMs, utils.BoolToInt(rec.Uploaded), rec.RecordFilePath)
	if err != nil {
		return fmt.Errorf("can't insert call %d: %w", rec.CallLogID, err)
	}
	return nil
}

// UpdateCall overwrites the call record. Uploaded flag never goes back to false
func (db *DB) UpdateCall(ctx context.Context, rec *persistence.CallRecord) error {
	r, err := db.db.ExecContext(ctx, `UPDATE call_record SET
		uuid = ?, caller_number = ?, mobile = ?, call_start_time = ?, is_connected = ?,
		call_end_time = ?, duration_ms = ?, is_uploaded = MAX(is_uploaded, ?), record_file_path = ?
	WHERE call_log_id = ?`,
		rec.UUID, rec.CallerNumber, rec.Mobile, rec.CallStartTime, utils.BoolToInt(rec.Connected),
		rec.CallEndTime, rec.DurationMs, utils.BoolToInt(rec.Uploaded), rec.RecordFilePath, rec.CallLogID)
	if err != nil {
		return fmt.Errorf("can't update call %d: %w", rec.CallLogID, err)
	}
	if n, _ := r.RowsAffected(); n != 1 {
		return fmt.Errorf("can't update call %d, no record", rec.CallLogID)
	}
	return nil
}

// ListCalls returns calls, newest first
func (db *DB) ListCalls(ctx context.Context, limit int) ([]*persistence.CallRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.db.QueryContext(ctx, `SELECT `+callFields+` FROM call_record
		ORDER BY call_start_time DESC LIMIT ?`, limit)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*persistence.CallRecord, error) {
	var res persistence.CallRecord
	var connected, uploaded int
	if err := row.Scan(&res.CallLogID, &res.UUID, &res.CallerNumber, &res.Mobile, &res.CallStartTime, &connected,
		&res.CallEndTime, &res.DurationMs, &uploaded, &res.RecordFilePath); err != nil {
		return nil, err
	}
	res.Connected, res.Uploaded = connected != 0, uploaded != 0
	return &res, nil
}
