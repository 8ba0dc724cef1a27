package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one file found under the data tree. Rel is slash
// separated and relative to the scanned root.
type FileInfo struct {
	Path    string    `json:"path"`
	Rel     string    `json:"rel"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Find returns the regular files under root matching pattern, sorted by Rel.
// A pattern starting with "**/" matches file names at any depth; any other
// pattern is a glob relative to root, e.g. "*/*.csv". A missing root yields
// no files and no error.
func Find(root, pattern string) ([]FileInfo, error) {
	base, recursive := strings.CutPrefix(pattern, "**/")
	if _, err := filepath.Match(base, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	var out []FileInfo
	add := func(path string, info fs.FileInfo) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		out = append(out, FileInfo{Path: path, Rel: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
	}

	if !recursive {
		matches, _ := filepath.Glob(filepath.Join(root, pattern))
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				add(m, info)
			}
		}
	} else {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == root {
					return fs.SkipAll
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if ok, _ := filepath.Match(base, d.Name()); !ok {
				return nil
			}
			if info, err := d.Info(); err == nil {
				add(path, info)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, nil
}

// Latest returns the most recently modified file.
func Latest(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}
	latest := files[0]
	for _, f := range files[1:] {
		if f.ModTime.After(latest.ModTime) {
			latest = f
		}
	}
	return latest, true
}

// TotalSize sums the sizes of files.
func TotalSize(files []FileInfo) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}
