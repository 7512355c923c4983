package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UniqueName returns a path in dir for name that does not exist yet,
// appending " (1)", " (2)", ... before the extension when needed.
func UniqueName(dir, name string) string {
	path := filepath.Join(dir, SafeName(name))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// SafeName strips any directory components a peer put into a file name.
func SafeName(name string) string {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if name == "/" || name == "." || name == "" {
		return "download"
	}
	return name
}

// Save writes data under dir with a unique name and returns the path used.
func Save(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := UniqueName(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
