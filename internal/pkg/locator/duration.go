package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// probeDuration returns audio duration or 0 if it can't be detected
func probeDuration(path string) time.Duration {
	var d time.Duration
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		d, err = wavDuration(path)
	case ".mp3":
		d, err = mp3Duration(path)
	default:
		return 0
	}
	if err != nil {
		goapp.Log.Debug().Err(err).Str("path", path).Msg("can't get duration")
		return 0
	}
	return d
}

func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("not a wav file")
	}
	return dec.Duration()
}

func mp3Duration(path string) (res time.Duration, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	// decoder panics on some broken streams
	defer func() {
		if r := recover(); r != nil {
			res, err = 0, fmt.Errorf("mp3 decode: %v", r)
		}
	}()
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, err
	}
	if dec.Length() <= 0 || dec.SampleRate() <= 0 {
		return 0, fmt.Errorf("unknown length")
	}
	// 16 bit stereo samples
	samples := dec.Length() / 4
	return time.Duration(samples) * time.Second / time.Duration(dec.SampleRate()), nil
}
