package locator

import (
	"context"
	"errors"
	"io"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
)

// DefaultRoot is the external storage root on android
const DefaultRoot = "/storage/emulated/0"

// DefaultDepth for the deep search
const DefaultDepth = 3

// Locator finds call recordings on vendor specific storage
type Locator struct {
	root        string
	searchRoots []string
	device      Device
	vendors     []Vendor
	depth       int
	window      time.Duration

	durationF func(path string) time.Duration
}

// NewLocator creates locator for the storage root
func NewLocator(root string, device Device) (*Locator, error) {
	if root == "" {
		return nil, fmt.Errorf("no root")
	}
	res := &Locator{root: root, device: device, vendors: Vendors, depth: DefaultDepth, durationF: probeDuration}
	res.searchRoots = uniq([]string{root, DefaultRoot, "/sdcard"})
	return res, nil
}

// WithSearchRoots overrides roots used by the deep search
func (l *Locator) WithSearchRoots(roots ...string) *Locator {
	if len(roots) > 0 {
		l.searchRoots = uniq(roots)
	}
	return l
}

// WithMatchWindow sets max allowed distance between call and file times, 0 - no time check
func (l *Locator) WithMatchWindow(d time.Duration) *Locator {
	l.window = d
	return l
}

// WithDepth sets the deep search depth
func (l *Locator) WithDepth(depth int) *Locator {
	if depth > 0 {
		l.depth = depth
	}
	return l
}

// Root returns the storage root
func (l *Locator) Root() string {
	return l.root
}

// Vendor returns the detected vendor id
func (l *Locator) Vendor() string {
	if v := DetectVendor(l.device, l.vendors); v != nil {
		return v.ID
	}
	return ""
}

// CheckAccess returns utils.ErrPermissionDenied if the storage root can't be read
func (l *Locator) CheckAccess() error {
	f, err := os.Open(l.root)
	if err == nil {
		defer f.Close()
		_, err = f.Readdirnames(1)
		if err == nil || errors.Is(err, io.EOF) {
			return nil
		}
	}
	if errors.Is(err, fs.ErrPermission) {
		return utils.NewErrPermissionDenied(utils.PermissionStorage, err)
	}
	return fmt.Errorf("can't read %s: %w", l.root, err)
}

// ListCandidateDirectories returns existing readable recording dirs, most probable first
func (l *Locator) ListCandidateDirectories() []string {
	res := []string{}
	for _, p := range candidatePaths(l.device, l.vendors) {
		dir := filepath.Join(l.root, p)
		if readableDir(dir) {
			res = append(res, dir)
		}
	}
	return res
}

// ScanDirectory lists audio files in dir, not recursive. Newest files go first
func (l *Locator) ScanDirectory(dir string) ([]*persistence.RecordFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("can't read dir %s: %w", dir, err)
	}
	res := []*persistence.RecordFile{}
	for _, e := range entries {
		if e.IsDir() || !utils.IsAudioFile(e.Name()) {
			continue
		}
		if f := l.toFile(filepath.Join(dir, e.Name()), e); f != nil {
			res = append(res, f)
		}
	}
	sortNewest(res)
	return res, nil
}

// DeepSearch walks storage roots up to maxDepth looking for audio files.
// Unreadable dirs are skipped
func (l *Locator) DeepSearch(ctx context.Context, maxDepth int) ([]*persistence.RecordFile, error) {
	if maxDepth <= 0 {
		maxDepth = l.depth
	}
	res := []*persistence.RecordFile{}
	seen := map[string]bool{}
	for _, root := range l.searchRoots {
		rootDepth := depthOf(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				goapp.Log.Debug().Err(err).Str("path", path).Msg("skip")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if depthOf(path)-rootDepth >= maxDepth {
					return fs.SkipDir
				}
				return nil
			}
			if !utils.IsAudioFile(d.Name()) || seen[path] {
				return nil
			}
			seen[path] = true
			if f := l.toFile(path, d); f != nil {
				res = append(res, f)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			goapp.Log.Warn().Err(err).Str("root", root).Msg("deep search")
		}
	}
	sortNewest(res)
	return res, nil
}

// Scan returns all recordings from the candidate dirs or from the deep search if no dir is found
func (l *Locator) Scan(ctx context.Context) ([]*persistence.RecordFile, error) {
	dirs := l.ListCandidateDirectories()
	if len(dirs) == 0 {
		goapp.Log.Info().Str("root", l.root).Msg("no known record dirs, deep search")
		return l.DeepSearch(ctx, l.depth)
	}
	res := []*persistence.RecordFile{}
	for _, dir := range dirs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		files, err := l.ScanDirectory(dir)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("dir", dir).Msg("skip dir")
			continue
		}
		res = append(res, files...)
	}
	sortNewest(res)
	return res, nil
}

// Locate finds the recording of a call. Returns nil if nothing matches
func (l *Locator) Locate(ctx context.Context, number string, callTime time.Time) (*persistence.RecordFile, error) {
	files, err := l.Scan(ctx)
	if err != nil {
		return nil, err
	}
	res := FindBestMatch(number, callTime, files, l.window)
	if res == nil {
		goapp.Log.Info().Str("number", number).Int("files", len(files)).Msg("no recording")
		return nil, nil
	}
	goapp.Log.Info().Str("number", number).Str("path", res.Path).Msg("found recording")
	return res, nil
}

// FindBestMatch returns the newest file whose name contains the number.
// If window > 0 the file time must also be within window of callTime
func FindBestMatch(number string, callTime time.Time, candidates []*persistence.RecordFile, window time.Duration) *persistence.RecordFile {
	if number == "" {
		return nil
	}
	files := make([]*persistence.RecordFile, len(candidates))
	copy(files, candidates)
	sortNewest(files)
	for _, f := range files {
		if !strings.Contains(f.Name, number) {
			continue
		}
		if window > 0 && absDuration(f.Created.Sub(callTime)) > window {
			continue
		}
		return f
	}
	return nil
}

func (l *Locator) toFile(path string, d fs.DirEntry) *persistence.RecordFile {
	info, err := d.Info()
	if err != nil {
		goapp.Log.Debug().Err(err).Str("path", path).Msg("can't stat")
		return nil
	}
	return &persistence.RecordFile{
		Path:     path,
		Name:     d.Name(),
		Size:     info.Size(),
		Created:  info.ModTime(),
		Ext:      strings.ToLower(filepath.Ext(path)),
		Duration: l.durationF(path),
	}
}

func readableDir(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()
	st, err := f.Stat()
	return err == nil && st.IsDir()
}

func sortNewest(files []*persistence.RecordFile) {
	sort.SliceStable(files, func(i, j int) bool { return files[i].Created.After(files[j].Created) })
}

func depthOf(path string) int {
	return strings.Count(filepath.Clean(path), string(filepath.Separator))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func uniq(in []string) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			res = append(res, s)
		}
	}
	return res
}
