package datasets

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

func parseClassID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty class id")
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("class name %q is not an integer id: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("class id %d is negative", v)
	}
	return v, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// FindCSVInAssets finds the first CSV file in a directory. Convenience for
// examples and quick-start commands.
func FindCSVInAssets(dir string) (string, error) {
	pattern := filepath.Join(dir, "*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no CSV files found in %s", dir)
	}
	return matches[0], nil
}
