package download

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteMetadata writes a plain-text summary of the fetched archives to path.
func WriteMetadata(path string, results []*Result, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "Download date: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Archives: %d\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(w, "Source: %s\n", r.Source.URL)
		fmt.Fprintf(w, "Directory: %s\n", r.Dir)
		fmt.Fprintf(w, "Archive: %s, Size: %d bytes, BLAKE2b-256: %s\n", r.Source.Archive(), r.Bytes, r.Digest)
		for _, file := range r.Files {
			fmt.Fprintf(w, "File: %s, Size: %d bytes\n", file.Path, file.Size)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
