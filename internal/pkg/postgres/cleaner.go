package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/airenas/go-app/pkg/goapp"
)

// GetExpiredUploads returns successful uploads not touched since the time
func (db *DB) GetExpiredUploads(ctx context.Context, olderThan time.Time) ([]*persistence.UploadRecord, error) {
	goapp.Log.Info().Time("older than", olderThan).Msg("selecting old uploads...")
	rows, err := db.pool.Query(ctx, `SELECT `+uploadFields+` FROM upload_records
		WHERE upload_status = $1 AND upload_time < $2 ORDER BY upload_time`, status.UploadSuccess.String(), olderThan)
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
	cmd, err := db.pool.Exec(ctx, `DELETE FROM upload_records WHERE file_path = $1`, path)
	if err != nil {
		return fmt.Errorf("can't delete upload %s: %w", path, err)
	}
	goapp.Log.Info().Str("path", path).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	return nil
}
