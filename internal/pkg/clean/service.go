package clean

import (
	"context"
	"os"
	"time"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/pkg/errors"
)

// Store provides the upload ledger cleanup
type Store interface {
	GetExpiredUploads(ctx context.Context, olderThan time.Time) ([]*persistence.UploadRecord, error)
	DeleteUpload(ctx context.Context, path string) error
}

// Data keeps data required for the cleaner
type Data struct {
	Store Store
	// ExpiresAfter is the minimal age of a successful upload row
	ExpiresAfter time.Duration
	// Interval between runs
	Interval time.Duration
}

// Cleaner drops ledger rows of uploaded recordings that were deleted from the device.
// Rows of existing files are kept: they prevent re-uploading the same content
type Cleaner struct {
	data    *Data
	nowF    func() time.Time
	existsF func(string) (bool, error)
}

// NewCleaner creates cleaner
func NewCleaner(data *Data) (*Cleaner, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Cleaner{data: data, nowF: time.Now, existsF: fileExists}, nil
}

func validate(data *Data) error {
	if data == nil {
		return errors.New("no data")
	}
	if data.Store == nil {
		return errors.New("no store")
	}
	if data.ExpiresAfter <= 0 {
		return errors.New("no expiresAfter")
	}
	return nil
}

// Start runs the cleaner periodically, returns channel closed when it stops
func (c *Cleaner) Start(ctx context.Context) <-chan struct{} {
	res := make(chan struct{})
	interval := c.data.Interval
	if interval <= 0 {
		interval = time.Hour * 24
	}
	go func() {
		defer close(res)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := c.Clean(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("clean failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return res
}

// Clean makes one pass, returns count of deleted rows
func (c *Cleaner) Clean(ctx context.Context) (int, error) {
	defer goapp.Estimate("clean")()
	recs, err := c.data.Store.GetExpiredUploads(ctx, c.nowF().Add(-c.data.ExpiresAfter))
	if err != nil {
		return 0, err
	}
	res := 0
	for _, r := range recs {
		ok, err := c.existsF(r.FilePath)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("path", r.FilePath).Msg("can't check file, skip")
			continue
		}
		if ok {
			continue
		}
		if err := c.data.Store.DeleteUpload(ctx, r.FilePath); err != nil {
			return res, err
		}
		res++
	}
	goapp.Log.Info().Int("checked", len(recs)).Int("deleted", res).Msg("cleaned")
	return res, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "can't stat %s", path)
}
