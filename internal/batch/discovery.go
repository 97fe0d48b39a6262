package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/MeKo-Tech/qrvision/internal/camera"
)

// DiscoverOptions controls which files Discover returns.
type DiscoverOptions struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	// Limit caps the number of files returned. Zero means no limit.
	Limit int
}

// Discover expands files and directories into image paths. Files named
// directly are kept in argument order; directory contents are sorted by
// path. Only supported image extensions are returned.
func Discover(args []string, opts DiscoverOptions) ([]string, error) {
	var imageFiles []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			files, err := discoverInDirectory(arg, opts)
			if err != nil {
				return nil, err
			}
			imageFiles = append(imageFiles, files...)
		} else if shouldIncludeFile(arg, opts.IncludePatterns, opts.ExcludePatterns) {
			imageFiles = append(imageFiles, arg)
		}

		if opts.Limit > 0 && len(imageFiles) >= opts.Limit {
			return imageFiles[:opts.Limit], nil
		}
	}

	return imageFiles, nil
}

// discoverInDirectory lists image files in dir, descending only when recursive.
func discoverInDirectory(dir string, opts DiscoverOptions) ([]string, error) {
	var files []string

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIncludeFile(path, opts.IncludePatterns, opts.ExcludePatterns) {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// shouldIncludeFile applies the image extension filter, then the patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if !camera.IsSupportedImage(path) {
		return false
	}

	// Check exclude patterns first
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}

	// If no include patterns, include all (that aren't excluded)
	if len(includePatterns) == 0 {
		return true
	}

	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern checks if a file's base name matches any of the patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
