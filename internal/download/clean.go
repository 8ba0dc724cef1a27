package download

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const keepFile = ".gitkeep"

// CleanDir removes everything under dir except .gitkeep files, then prunes
// directories left empty. dir itself is kept.
func CleanDir(dir string) error {
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if path == dir {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if d.Name() == keepFile {
			return nil
		}
		return os.Remove(path)
	})
	if err != nil {
		return err
	}

	// deepest first
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			if err := os.Remove(d); err != nil {
				return err
			}
		}
	}
	return nil
}
