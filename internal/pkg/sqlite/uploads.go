package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
)

const uploadFields = `id, file_path, file_name, file_hash, file_size, upload_time, upload_status, server_id`

// UpsertPending adds the file as PENDING if the path is new, existing status is kept.
// Returns the record id
func (db *DB) UpsertPending(ctx context.Context, f *persistence.RecordFile) (int64, error) {
	var id int64
	err := db.db.QueryRowContext(ctx, `SELECT id FROM upload_records WHERE file_path = ?`, f.Path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("can't load upload %s: %w", f.Path, err)
	}
	hash, err := db.hashF(f.Path)
	if err != nil {
		return 0, err
	}
	_, err = db.db.ExecContext(ctx, `INSERT INTO upload_records (file_path, file_name, file_hash, file_size, upload_time, upload_status)
	VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(file_path) DO NOTHING`,
		f.Path, f.Name, hash, f.Size, db.nowF().UnixMilli(), status.Pending.String())
	if err != nil {
		return 0, fmt.Errorf("can't insert upload %s: %w", f.Path, err)
	}
	if err := db.db.QueryRowContext(ctx, `SELECT id FROM upload_records WHERE file_path = ?`, f.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("can't load upload %s: %w", f.Path, err)
	}
	return id, nil
}

// GetUpload returns nil if the path is not known
func (db *DB) GetUpload(ctx context.Context, path string) (*persistence.UploadRecord, error) {
	res, err := scanUpload(db.db.QueryRowContext(ctx, `SELECT `+uploadFields+` FROM upload_records WHERE file_path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't load upload %s: %w", path, err)
	}
	return res, nil
}

// GetStatus returns PENDING for unknown paths
func (db *DB) GetStatus(ctx context.Context, path string) (status.Status, error) {
	var st string
	err := db.db.QueryRowContext(ctx, `SELECT upload_status FROM upload_records WHERE file_path = ?`, path).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Pending, nil
	}
	if err != nil {
		return status.Pending, fmt.Errorf("can't load status %s: %w", path, err)
	}
	return status.From(st), nil
}

// Transition overwrites status and time, serverID is kept if empty
func (db *DB) Transition(ctx context.Context, path string, st status.Status, serverID string) error {
	r, err := db.db.ExecContext(ctx, `UPDATE upload_records SET upload_status = ?, upload_time = ?,
		server_id = CASE WHEN ? = '' THEN server_id ELSE ? END
	WHERE file_path = ?`, st.String(), db.nowF().UnixMilli(), serverID, serverID, path)
	if err != nil {
		return fmt.Errorf("can't update status %s: %w", path, err)
	}
	if n, _ := r.RowsAffected(); n != 1 {
		return fmt.Errorf("can't update status %s, no record", path)
	}
	return nil
}

// IsHashUploaded checks if any file with the same content was uploaded
func (db *DB) IsHashUploaded(ctx context.Context, hash string) (bool, error) {
	var res bool
	err := db.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM upload_records WHERE file_hash = ? AND upload_status = ?)`,
		hash, status.UploadSuccess.String()).Scan(&res)
	if err != nil {
		return false, fmt.Errorf("can't check hash: %w", err)
	}
	return res, nil
}

// GetPending returns PENDING and UPLOAD_FAILED records, newest first
func (db *DB) GetPending(ctx context.Context) ([]*persistence.UploadRecord, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+uploadFields+` FROM upload_records
		WHERE upload_status IN (?, ?) ORDER BY upload_time DESC`, status.Pending.String(), status.UploadFailed.String())
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

func scanUpload(row scanner) (*persistence.UploadRecord, error) {
	var res persistence.UploadRecord
	var updated int64
	var st string
	if err := row.Scan(&res.ID, &res.FilePath, &res.FileName, &res.FileHash, &res.FileSize, &updated, &st, &res.ServerID); err != nil {
		return nil, err
	}
	res.Updated = time.UnixMilli(updated)
	res.Status = status.From(st)
	return &res, nil
}
