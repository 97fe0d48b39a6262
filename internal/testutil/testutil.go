package testutil

import (
	"os"
	"path/filepath"
	"strings"
)

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// CountFiles counts the regular files in dir, skipping names that end in one
// of the given suffixes.
func CountFiles(dir string, skipSuffixes ...string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
outer:
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, s := range skipSuffixes {
			if strings.HasSuffix(e.Name(), s) {
				continue outer
			}
		}
		n++
	}
	return n, nil
}

// CountImages counts the PNG and JPEG files in dir.
func CountImages(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			n++
		}
	}
	return n, nil
}
