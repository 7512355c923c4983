package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// DefaultType is used when the extension does not map to a MIME type.
const DefaultType = "application/octet-stream"

// Info describes a local file queued for sending.
type Info struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	Size int64

	// Type is the MIME type derived from the extension
	Type string
}

// Validate checks that every path names a readable regular file.
// All failures are reported together.
func Validate(paths []string) ([]Info, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files specified")
	}

	var infos []Info
	var problems []string

	for _, path := range paths {
		info, err := validateSingleFile(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return infos, nil
}

func validateSingleFile(path string) (Info, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Info{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%s: file does not exist", path)
		}
		return Info{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return Info{}, fmt.Errorf("%s: is a directory", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return Info{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return Info{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectType(absPath),
	}, nil
}

// DetectType returns the MIME type for name's extension.
func DetectType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return DefaultType
}

// TotalSize returns the combined size of infos.
func TotalSize(infos []Info) int64 {
	var total int64
	for _, info := range infos {
		total += info.Size
	}
	return total
}
