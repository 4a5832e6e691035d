package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
)

// GetExpiredUploads returns successful uploads not touched since the time
func (db *DB) GetExpiredUploads(ctx context.Context, olderThan time.Time) ([]*persistence.UploadRecord, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+uploadFields+` FROM upload_records
		WHERE upload_status = ? AND upload_time < ? ORDER BY upload_time`, status.UploadSuccess.String(), olderThan.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("can't select uploads: %w", err)
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

// DeleteUpload removes the ledger row of the path
func (db *DB) DeleteUpload(ctx context.Context, path string) error {
	if _, err := db.db.ExecContext(ctx, `DELETE FROM upload_records WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("can't delete upload %s: %w", path, err)
	}
	return nil
}
