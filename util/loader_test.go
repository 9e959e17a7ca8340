package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"frame-10.jpg",
		"frame-2.jpg",
		"zebra.PNG",
		"apple.bmp",
		"notes.txt",
		"frame-1.jpeg",
	} {
		touch(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	paths, err := ListImageFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"frame-1.jpeg", "frame-2.jpg", "frame-10.jpg", "apple.bmp", "zebra.PNG"}, names)
}

func TestListImageFiles_MissingDir(t *testing.T) {
	_, err := ListImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestValidateImagePath(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "dog.jpg")
	bad := filepath.Join(dir, "dog.gif")
	touch(t, good)
	touch(t, bad)

	assert.NoError(t, ValidateImagePath(good))
	assert.Error(t, ValidateImagePath(bad))
	assert.Error(t, ValidateImagePath(dir))
	assert.Error(t, ValidateImagePath(filepath.Join(dir, "cat.jpg")))
}

func TestFrameNumber(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"frame-0.jpg", 0},
		{"frame-42.png", 42},
		{"frame-x.png", -1},
		{"frame--3.png", -1},
		{"image.jpg", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, frameNumber(tt.name), tt.name)
	}
}
