// Package envload populates the process environment from dotenv files.
package envload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DefaultFiles are read in order; earlier files win because values already
// present in the environment are never overwritten.
var DefaultFiles = []string{".env.local", ".env"}

// Load reads names from dir and sets every key not already set to a
// non-empty value. It returns the paths that were read. Missing files are
// skipped.
func Load(dir string, names ...string) ([]string, error) {
	if len(names) == 0 {
		names = DefaultFiles
	}
	var loaded []string
	for _, name := range names {
		path := name
		if dir != "" && !filepath.IsAbs(name) {
			path = filepath.Join(dir, name)
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("envload: read %s: %w", path, err)
		}
		for k, v := range values {
			if cur, exists := os.LookupEnv(k); exists && cur != "" {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return loaded, fmt.Errorf("envload: set %q: %w", k, err)
			}
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// LoadNearest walks from the working directory up to the filesystem root and
// loads the dotenv files of the first directory that has any.
func LoadNearest() ([]string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dir := wd
	for {
		if hasAny(dir, DefaultFiles) {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func hasAny(dir string, names []string) bool {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
