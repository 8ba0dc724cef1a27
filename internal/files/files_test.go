package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "censo/2020/b.csv", "12345")
	touch(t, root, "censo/2020/A.csv", "1")
	touch(t, root, "censo/2020/notes.txt", "x")
	touch(t, root, "censo/2020/sub/c.csv", "12")
	touch(t, root, "shp/2020/00ent.dbf", "123")

	tests := []struct {
		name    string
		root    string
		pattern string
		want    []string
	}{
		{name: "one level glob", root: root, pattern: "censo/2020/*.csv", want: []string{"censo/2020/A.csv", "censo/2020/b.csv"}},
		{name: "any depth", root: root, pattern: "**/*.csv", want: []string{"censo/2020/A.csv", "censo/2020/b.csv", "censo/2020/sub/c.csv"}},
		{name: "nested root", root: filepath.Join(root, "shp"), pattern: "*/*.dbf", want: []string{"2020/00ent.dbf"}},
		{name: "missing root", root: filepath.Join(root, "nope"), pattern: "**/*.csv"},
		{name: "directories are skipped", root: root, pattern: "censo/*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := Find(tt.root, tt.pattern)
			require.NoError(t, err)
			rels := make([]string, 0, len(found))
			for _, f := range found {
				rels = append(rels, f.Rel)
			}
			assert.ElementsMatch(t, tt.want, rels)
		})
	}

	found, err := Find(root, "**/*.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(1+5+2), TotalSize(found))

	_, err = Find(root, "**/[")
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	_, ok := Latest(nil)
	assert.False(t, ok)

	now := time.Now()
	latest, ok := Latest([]FileInfo{
		{Rel: "old", ModTime: now.Add(-time.Hour)},
		{Rel: "new", ModTime: now},
		{Rel: "mid", ModTime: now.Add(-time.Minute)},
	})
	require.True(t, ok)
	assert.Equal(t, "new", latest.Rel)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, WriteFile(path, []byte("a,b\n")))
	require.NoError(t, WriteFile(path, []byte("c,d\n")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(content))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata", "enigh.txt")
	meta := NewMetadata("ENIGH Data Transformation").
		Add("Source", "raw/enigh/2022/x.csv").
		Add("Rows", 3).
		AddList("Selected columns", []string{"folioviv", "ing_cor"})

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, WriteMetadata(path, meta, now))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Equal(t, []string{
		"Metadata for ENIGH Data Transformation",
		"Generated: 2024-01-02T03:04:05Z",
		"Source: raw/enigh/2022/x.csv",
		"Rows: 3",
		"Selected columns: folioviv, ing_cor",
	}, lines)
}
