package files

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.txt")
	empty := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(doc, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	infos, err := Validate([]string{doc, empty})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "notes.txt", infos[0].Name)
	assert.Equal(t, int64(5), infos[0].Size)
	assert.Contains(t, infos[0].Type, "text/plain")
	assert.Equal(t, int64(0), infos[1].Size)
	assert.Equal(t, int64(5), TotalSize(infos))

	_, err = Validate([]string{doc, filepath.Join(dir, "missing"), dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Contains(t, err.Error(), "is a directory")

	_, err = Validate(nil)
	assert.Error(t, err)
}

func TestDetectType(t *testing.T) {
	assert.Equal(t, DefaultType, DetectType("blob.zzunknown"))
	assert.Equal(t, "image/png", DetectType("a.png"))
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatSize(512), "512 B"},
		{FormatSize(40 * 1024), "40.00 KB"},
		{FormatSize(3 * 1024 * 1024), "3.00 MB"},
		{FormatSpeed(2048), "2.00 KB/s"},
		{FormatSpeed(10), "10 B/s"},
		{FormatDuration(65 * time.Second), "1m 5s"},
		{FormatDuration(3*time.Hour + 2*time.Second), "3h 0m 2s"},
		{FormatElapsed(1234 * time.Millisecond), "1.2s"},
		{FormatElapsed(0), "0.0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestSaveUsesUniqueNames(t *testing.T) {
	dir := t.TempDir()

	first, err := Save(dir, "report.pdf", []byte("a"))
	require.NoError(t, err)
	second, err := Save(dir, "report.pdf", []byte("b"))
	require.NoError(t, err)
	third, err := Save(dir, "../../report.pdf", []byte("c"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "report.pdf"), first)
	assert.Equal(t, filepath.Join(dir, "report (1).pdf"), second)
	assert.Equal(t, filepath.Join(dir, "report (2).pdf"), third)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a.txt", SafeName("dir/sub/a.txt"))
	assert.Equal(t, "a.txt", SafeName(`C:\temp\a.txt`))
	assert.Equal(t, "download", SafeName(""))
	assert.Equal(t, "download", SafeName(".."))
}

func TestZipFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0o644))

	target := filepath.Join(dir, "bundle.zip")
	require.NoError(t, ZipFiles(target, []string{a, b}))

	r, err := zip.OpenReader(target)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}
