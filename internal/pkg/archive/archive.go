package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
)

// Filer stores objects in the bucket
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, name string, r io.Reader) error
}

// Archiver copies uploaded recordings to S3 compatible storage.
// Objects are keyed by content hash so a recording is stored once
type Archiver struct {
	filer  Filer
	prefix string
	hashF  func(string) (string, error)
}

// NewArchiver creates archiver
func NewArchiver(filer Filer, prefix string) (*Archiver, error) {
	if filer == nil {
		return nil, fmt.Errorf("no filer")
	}
	return &Archiver{filer: filer, prefix: strings.Trim(prefix, "/"), hashF: utils.FileHash}, nil
}

// Archive saves the file unless the same content is already archived
func (a *Archiver) Archive(ctx context.Context, path string) error {
	name, err := a.objectName(path)
	if err != nil {
		return err
	}
	ok, err := a.exists(ctx, name)
	if err != nil {
		return fmt.Errorf("can't check %s: %w", name, err)
	}
	if ok {
		goapp.Log.Debug().Str("name", name).Msg("already archived")
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", path, err)
	}
	defer f.Close()
	if err := a.filer.SaveFile(ctx, name, f); err != nil {
		return fmt.Errorf("can't save %s: %w", name, err)
	}
	goapp.Log.Info().Str("path", path).Str("name", name).Msg("archived")
	return nil
}

func (a *Archiver) objectName(path string) (string, error) {
	h, err := a.hashF(path)
	if err != nil {
		return "", fmt.Errorf("can't hash %s: %w", path, err)
	}
	res := h + "/" + filepath.Base(path)
	if a.prefix != "" {
		res = a.prefix + "/" + res
	}
	return res, nil
}

func (a *Archiver) exists(ctx context.Context, name string) (bool, error) {
	file, err := a.filer.LoadFile(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	defer file.Close()
	stGetter, ok := file.(interface{ Stat() (fs.FileInfo, error) })
	if !ok {
		return true, nil
	}
	if _, err := stGetter.Stat(); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNotFound(err error) bool {
	var errTest minio.ErrorResponse
	return errors.As(err, &errTest) && errTest.StatusCode == http.StatusNotFound
}
