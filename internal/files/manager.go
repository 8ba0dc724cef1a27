package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteFile writes data to path through a temporary file in the same directory,
// so readers never observe a partially written table.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Metadata is the content of a provenance text file: a title followed by
// "Key: value" lines in insertion order.
type Metadata struct {
	Title  string
	Fields []MetadataField
}

// MetadataField is one line of a metadata file.
type MetadataField struct {
	Key   string
	Value string
}

// NewMetadata starts a metadata document.
func NewMetadata(title string) *Metadata {
	return &Metadata{Title: title}
}

// Add appends a line and returns m for chaining.
func (m *Metadata) Add(key string, value interface{}) *Metadata {
	m.Fields = append(m.Fields, MetadataField{Key: key, Value: fmt.Sprint(value)})
	return m
}

// AddList appends a line holding a comma separated list.
func (m *Metadata) AddList(key string, values []string) *Metadata {
	return m.Add(key, strings.Join(values, ", "))
}

// render formats the document. The generation time is always the second line.
func (m *Metadata) render(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Metadata for %s\n", m.Title)
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(time.RFC3339))
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}
	return b.String()
}

// WriteMetadata writes m to path.
func WriteMetadata(path string, m *Metadata, now time.Time) error {
	if err := WriteFile(path, []byte(m.render(now))); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", path, err)
	}
	slog.Debug("Metadata written", slog.String("path", path), slog.String("title", m.Title))
	return nil
}
