package download

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
)

func createTestZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{
		Workers:           2,
		Retries:           3,
		BackoffBase:       time.Millisecond,
		Timeout:           5 * time.Second,
		UserAgent:         "test-agent",
		RequestsPerSecond: 1000,
		Burst:             10,
	}
}

func newTestClient(cfg config.DownloadConfig) *Client {
	c := NewClient(cfg)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func testSource(url string) dataset.Source {
	return dataset.Source{
		Kind: dataset.KindENIGH,
		Year: 2022,
		Name: "conjunto_de_datos_enigh_ns_2022_csv",
		URL:  url,
		Dest: "enigh/2022",
	}
}

func TestFetch(t *testing.T) {
	archive := createTestZip(t, map[string]string{
		"conjunto_de_datos/data.csv": "folioviv,ing_cor\n1,100\n",
		"diccionario/readme.txt":     "hello",
	})

	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	res, err := newTestClient(testConfig()).Fetch(context.Background(), testSource(srv.URL), root)
	require.NoError(t, err)

	assert.Equal(t, "test-agent", ua.Load())
	assert.Equal(t, int64(len(archive)), res.Bytes)
	assert.Len(t, res.Digest, 64)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "conjunto_de_datos/data.csv", res.Files[0].Path)

	content, err := os.ReadFile(filepath.Join(root, "enigh", "2022", "conjunto_de_datos", "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, "folioviv,ing_cor\n1,100\n", string(content))

	_, err = os.Stat(filepath.Join(root, "enigh", "2022", res.Source.Archive()+".part"))
	assert.True(t, os.IsNotExist(err), "partial archive should be removed")
}

func TestFetchRetries(t *testing.T) {
	archive := createTestZip(t, map[string]string{"a.csv": "x\n"})

	tests := []struct {
		name         string
		failures     int32
		status       int
		wantErr      bool
		wantAttempts int
		wantCalls    int32
	}{
		{name: "recovers after server errors", failures: 2, status: http.StatusServiceUnavailable, wantAttempts: 3, wantCalls: 3},
		{name: "gives up after retries", failures: 10, status: http.StatusInternalServerError, wantErr: true, wantCalls: 4},
		{name: "not found is permanent", failures: 10, status: http.StatusNotFound, wantErr: true, wantCalls: 1},
		{name: "too many requests is retried", failures: 1, status: http.StatusTooManyRequests, wantAttempts: 2, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				if n <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				w.Header().Set("Content-Type", "application/x-zip-compressed")
				w.Write(archive)
			}))
			defer srv.Close()

			res, err := newTestClient(testConfig()).Fetch(context.Background(), testSource(srv.URL), t.TempDir())
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrTypeNetwork, apperrors.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
		})
	}
}

func TestFetchRejectsNonZip(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(testConfig()).Fetch(context.Background(), testSource(srv.URL), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotZip)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-zip responses are not retried")
}

func TestFetchCorruptArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte("not really a zip"))
	}))
	defer srv.Close()

	_, err := newTestClient(testConfig()).Fetch(context.Background(), testSource(srv.URL), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(testConfig()).Fetch(ctx, testSource(srv.URL), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchAll(t *testing.T) {
	archive := createTestZip(t, map[string]string{"data.csv": "a\n1\n"})
	var inFlight, maxInFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer srv.Close()

	var sources []dataset.Source
	for i, path := range []string{"/a", "/b", "/missing", "/c", "/d"} {
		src := testSource(srv.URL + path)
		src.Kind = dataset.KindENCO
		src.Month = i + 1
		src.Dest = filepath.ToSlash(filepath.Join("enco", "2022", path[1:]))
		sources = append(sources, src)
	}

	results, err := newTestClient(testConfig()).FetchAll(context.Background(), sources, t.TempDir())
	require.Error(t, err)
	assert.Len(t, results, 4)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].Source.Month, results[i].Source.Month)
	}
}

func TestExtractRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(path, createTestZip(t, map[string]string{"../../escape.txt": "x"}), 0644))

	_, err := Extract(path, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal file path")
}

func TestValidZip(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.zip")
	bad := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(good, createTestZip(t, map[string]string{"a": "b"}), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0644))

	assert.True(t, ValidZip(good))
	assert.False(t, ValidZip(bad))
	assert.False(t, ValidZip(filepath.Join(dir, "absent.zip")))
}

func TestCleanDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	write(".gitkeep")
	write("enigh/2022/data.csv")
	write("enigh/2022/nested/more.csv")
	write("enco/.gitkeep")
	write("enco/2022/cs.csv")

	require.NoError(t, CleanDir(root))

	assert.FileExists(t, filepath.Join(root, ".gitkeep"))
	assert.FileExists(t, filepath.Join(root, "enco", ".gitkeep"))
	assert.NoDirExists(t, filepath.Join(root, "enigh"))
	assert.NoDirExists(t, filepath.Join(root, "enco", "2022"))
	assert.DirExists(t, root)

	assert.NoError(t, CleanDir(filepath.Join(root, "does-not-exist")))
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", "download_metadata.txt")
	results := []*Result{{
		Source: testSource("https://example.test/a.zip"),
		Dir:    "data/raw/enigh/2022",
		Bytes:  42,
		Digest: "abc123",
		Files:  []File{{Path: "conjunto_de_datos/data.csv", Size: 10}},
	}}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, WriteMetadata(path, results, now))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "Download date: 2024-03-01 12:00:00")
	assert.Contains(t, text, "Directory: data/raw/enigh/2022")
	assert.Contains(t, text, "Size: 42 bytes, BLAKE2b-256: abc123")
	assert.Contains(t, text, "File: conjunto_de_datos/data.csv, Size: 10 bytes")
}
