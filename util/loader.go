// Package util - File helpers for the command line tools.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SupportedExtensions are the image file extensions the loaders accept.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// IsImageFile reports whether path has a supported image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// ValidateImagePath checks that the file exists and has a supported extension.
func ValidateImagePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "image %s", path)
	}
	if info.IsDir() {
		return errors.Errorf("image %s is a directory", path)
	}
	if !IsImageFile(path) {
		return errors.Errorf("unsupported file extension %q, supported: %v",
			filepath.Ext(path), SupportedExtensions)
	}
	return nil
}

// ListImageFiles returns the image files directly inside dir.
//
// Files named like video frames ("frame-12.jpg") are ordered by frame number
// and come before every other file, which is ordered by name.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []string: The image file paths.
//   - error: Error if the directory can't be read.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image directory %s", dir)
	}

	type file struct {
		path  string
		frame int
	}

	var files []file
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		files = append(files, file{
			path:  filepath.Join(dir, entry.Name()),
			frame: frameNumber(entry.Name()),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		fi, fj := files[i], files[j]
		switch {
		case fi.frame >= 0 && fj.frame >= 0 && fi.frame != fj.frame:
			return fi.frame < fj.frame
		case (fi.frame >= 0) != (fj.frame >= 0):
			return fi.frame >= 0
		default:
			return fi.path < fj.path
		}
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// frameNumber returns N for "frame-N.ext" and -1 otherwise.
func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "frame-") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "frame-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
