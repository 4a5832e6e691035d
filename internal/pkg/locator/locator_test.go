package locator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/test"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestLocator(t *testing.T, root string, d Device) *Locator {
	t.Helper()
	res, err := NewLocator(root, d)
	require.Nil(t, err)
	res.WithSearchRoots(root)
	res.durationF = func(string) time.Duration { return 0 }
	return res
}

func TestNewLocator(t *testing.T) {
	_, err := NewLocator("", Device{})
	assert.NotNil(t, err)
	l, err := NewLocator("/r", Device{})
	require.Nil(t, err)
	assert.Equal(t, []string{"/r", DefaultRoot, "/sdcard"}, l.searchRoots)
}

func TestDetectVendor(t *testing.T) {
	tests := []struct {
		name string
		d    Device
		want string
	}{
		{name: "xiaomi", d: Device{Brand: "Xiaomi"}, want: "miui"},
		{name: "redmi", d: Device{Manufacturer: "REDMI"}, want: "miui"},
		{name: "miui rom", d: Device{Brand: "x", Display: "V14.0.MIUI"}, want: "miui"},
		{name: "oppo", d: Device{Brand: "OPPO"}, want: "oppo"},
		{name: "huawei", d: Device{Manufacturer: "HUAWEI"}, want: "huawei"},
		{name: "other", d: Device{Brand: "samsung"}, want: "generic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectVendor(tt.d, Vendors)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestCandidatePaths_VendorFirst(t *testing.T) {
	got := candidatePaths(Device{Brand: "HUAWEI"}, Vendors)
	require.True(t, len(got) > 0)
	assert.Equal(t, "Sounds/CallRecord", got[0])
	assert.Contains(t, got, "PhoneRecord")
	cnt := 0
	for _, p := range got {
		if p == "CallRecord" {
			cnt++
		}
	}
	assert.Equal(t, 1, cnt)
}

func TestListCandidateDirectories(t *testing.T) {
	root := t.TempDir()
	require.Nil(t, os.MkdirAll(filepath.Join(root, "Recordings"), 0o755))
	require.Nil(t, os.MkdirAll(filepath.Join(root, "Sounds/CallRecord"), 0o755))
	test.WriteFile(t, filepath.Join(root, "PhoneRecord"), "not a dir", time.Time{})
	l := newTestLocator(t, root, Device{Brand: "HUAWEI"})

	got := l.ListCandidateDirectories()

	assert.Equal(t, []string{filepath.Join(root, "Sounds/CallRecord"), filepath.Join(root, "Sounds"),
		filepath.Join(root, "Recordings")}, got)
}

func TestListCandidateDirectories_None(t *testing.T) {
	l := newTestLocator(t, t.TempDir(), Device{})
	assert.Empty(t, l.ListCandidateDirectories())
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	test.WriteFile(t, filepath.Join(dir, "a_138.amr"), "a", tNow.Add(-time.Hour))
	test.WriteFile(t, filepath.Join(dir, "b_138.M4A"), "bb", tNow)
	test.WriteFile(t, filepath.Join(dir, "notes.txt"), "x", tNow)
	test.WriteFile(t, filepath.Join(dir, "sub", "c.mp3"), "x", tNow)
	l := newTestLocator(t, dir, Device{})

	got, err := l.ScanDirectory(dir)

	require.Nil(t, err)
	require.Equal(t, 2, len(got))
	assert.Equal(t, "b_138.M4A", got[0].Name)
	assert.Equal(t, ".m4a", got[0].Ext)
	assert.Equal(t, int64(2), got[0].Size)
	assert.Equal(t, filepath.Join(dir, "a_138.amr"), got[1].Path)
}

func TestScanDirectory_Missing(t *testing.T) {
	l := newTestLocator(t, t.TempDir(), Device{})
	_, err := l.ScanDirectory(filepath.Join(t.TempDir(), "none"))
	assert.NotNil(t, err)
}

func TestScanDirectory_DurationFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	test.WriteFile(t, filepath.Join(dir, "a.wav"), "not wav", tNow)
	l := newTestLocator(t, dir, Device{})
	l.durationF = probeDuration

	got, err := l.ScanDirectory(dir)

	require.Nil(t, err)
	require.Equal(t, 1, len(got))
	assert.Equal(t, time.Duration(0), got[0].Duration)
}

func TestProbeDuration_Wav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	f, err := os.Create(path)
	require.Nil(t, err)
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &audio.IntBuffer{Data: make([]int, 8000), Format: &audio.Format{NumChannels: 1, SampleRate: 8000}, SourceBitDepth: 16}
	require.Nil(t, enc.Write(buf))
	require.Nil(t, enc.Close())
	require.Nil(t, f.Close())

	got := probeDuration(path)

	assert.InDelta(t, float64(time.Second), float64(got), float64(50*time.Millisecond))
}

func TestProbeDuration_Unknown(t *testing.T) {
	path := test.WriteFile(t, filepath.Join(t.TempDir(), "a.amr"), "x", time.Time{})
	assert.Equal(t, time.Duration(0), probeDuration(path))
}

func TestDeepSearch(t *testing.T) {
	root := t.TempDir()
	test.WriteFile(t, filepath.Join(root, "x", "call_1.amr"), "x", tNow.Add(-time.Minute))
	test.WriteFile(t, filepath.Join(root, "x", "y", "call_2.amr"), "x", tNow)
	test.WriteFile(t, filepath.Join(root, "x", "y", "z", "w", "call_3.amr"), "x", tNow)
	l := newTestLocator(t, root, Device{})

	got, err := l.DeepSearch(test.Ctx(t), 3)

	require.Nil(t, err)
	require.Equal(t, 2, len(got))
	assert.Equal(t, "call_2.amr", got[0].Name)
	assert.Equal(t, "call_1.amr", got[1].Name)
}

func TestDeepSearch_SkipsMissingRoot(t *testing.T) {
	root := t.TempDir()
	test.WriteFile(t, filepath.Join(root, "call_1.amr"), "x", tNow)
	l := newTestLocator(t, root, Device{})
	l.WithSearchRoots(filepath.Join(root, "none"), root)

	got, err := l.DeepSearch(test.Ctx(t), 0)

	require.Nil(t, err)
	assert.Equal(t, 1, len(got))
}

func TestFindBestMatch_Newest(t *testing.T) {
	t1 := tNow
	t2 := tNow.Add(time.Hour)
	files := []*persistence.RecordFile{
		{Name: "call_138_2024.mp3", Created: t1},
		{Name: "call_138_2025.mp3", Created: t2},
		{Name: "call_139_2026.mp3", Created: t2.Add(time.Hour)},
	}

	got := FindBestMatch("138", tNow, files, 0)

	require.NotNil(t, got)
	assert.Equal(t, "call_138_2025.mp3", got.Name)
	assert.Equal(t, "call_138_2024.mp3", files[0].Name, "input order kept")
}

func TestFindBestMatch_None(t *testing.T) {
	files := []*persistence.RecordFile{{Name: "call_139.mp3", Created: tNow}}
	assert.Nil(t, FindBestMatch("138", tNow, files, 0))
	assert.Nil(t, FindBestMatch("", tNow, files, 0))
	assert.Nil(t, FindBestMatch("138", tNow, nil, 0))
}

func TestFindBestMatch_Window(t *testing.T) {
	files := []*persistence.RecordFile{
		{Name: "call_138_a.mp3", Created: tNow.Add(time.Hour)},
		{Name: "call_138_b.mp3", Created: tNow.Add(30 * time.Second)},
	}
	got := FindBestMatch("138", tNow, files, time.Minute)
	require.NotNil(t, got)
	assert.Equal(t, "call_138_b.mp3", got.Name)
	assert.Nil(t, FindBestMatch("138", tNow.Add(-time.Hour), files, time.Minute))
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	test.WriteFile(t, filepath.Join(root, "Recordings", "call_138_2024.amr"), "x", tNow)
	test.WriteFile(t, filepath.Join(root, "Sounds", "CallRecord", "call_138_2025.amr"), "x", tNow.Add(time.Hour))
	l := newTestLocator(t, root, Device{})

	got, err := l.Locate(test.Ctx(t), "138", tNow)

	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, filepath.Join(root, "Sounds", "CallRecord", "call_138_2025.amr"), got.Path)
}

func TestLocate_DeepSearchFallback(t *testing.T) {
	root := t.TempDir()
	test.WriteFile(t, filepath.Join(root, "Vendor", "Rec", "138.amr"), "x", tNow)
	l := newTestLocator(t, root, Device{})

	got, err := l.Locate(test.Ctx(t), "138", tNow)

	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "138.amr", got.Name)
}

func TestLocate_NotFound(t *testing.T) {
	root := t.TempDir()
	require.Nil(t, os.MkdirAll(filepath.Join(root, "Recordings"), 0o755))
	l := newTestLocator(t, root, Device{})

	got, err := l.Locate(test.Ctx(t), "138", tNow)

	require.Nil(t, err)
	assert.Nil(t, got)
}

func TestCheckAccess(t *testing.T) {
	l := newTestLocator(t, t.TempDir(), Device{})
	assert.Nil(t, l.CheckAccess())
	l = newTestLocator(t, filepath.Join(t.TempDir(), "none"), Device{})
	err := l.CheckAccess()
	require.NotNil(t, err)
	_, ok := utils.PermissionDenied(err)
	assert.False(t, ok)
}
