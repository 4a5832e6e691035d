package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var audioExt = map[string]bool{".mp3": true, ".wav": true, ".m4a": true, ".aac": true,
	".3gp": true, ".amr": true, ".ogg": true, ".flac": true}

//FileExists check if file exists
func FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

//SupportAudioExt checks if audio ext is supported, ext is expected with a dot
func SupportAudioExt(ext string) bool {
	return audioExt[strings.ToLower(ext)]
}

// IsAudioFile checks file name extension
func IsAudioFile(name string) bool {
	return SupportAudioExt(filepath.Ext(name))
}

// FileHash calculates md5 hash of the file content
func FileHash(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", fmt.Errorf("can't open %s: %w", name, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("can't read %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
