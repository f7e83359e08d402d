package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (relative paths resolve against the working
// directory) and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// EnsureParentDir creates the directory holding file. In-memory SQLite
// paths are left alone.
func EnsureParentDir(file string) error {
	if file == "" || file == ":memory:" || file[0] == ':' {
		return nil
	}
	dir := filepath.Dir(file)
	if dir == "." {
		return nil
	}
	_, err := EnsureDir(dir)
	return err
}
