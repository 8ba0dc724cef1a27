package download

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/infrastructure"
)

// ErrNotZip is returned when the server answers with something other than an archive.
var ErrNotZip = errors.New("response is not a zip archive")

// statusError is an unexpected HTTP status.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("download failed with status: %d", e.Code)
}

// Result describes one fetched archive.
type Result struct {
	Source   dataset.Source
	Dir      string
	Bytes    int64
	Digest   string
	Files    []File
	Attempts int
	Duration time.Duration
}

// File is one extracted entry, relative to the extraction directory.
type File struct {
	Path string
	Size int64
}

// Client downloads archives.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     config.DownloadConfig
	logger  *slog.Logger
	metrics *infrastructure.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records downloaded bytes and retries.
func WithMetrics(m *infrastructure.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a download client from configuration.
func NewClient(cfg config.DownloadConfig, opts ...Option) *Client {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = infrastructure.WithComponent(c.logger, "download")
	return c
}

// Fetch downloads src and extracts it under rawRoot/src.Dest.
func (c *Client) Fetch(ctx context.Context, src dataset.Source, rawRoot string) (*Result, error) {
	ctx, span := infrastructure.StartSpan(ctx, "download.fetch")
	defer span.End()

	start := time.Now()
	dest := filepath.Join(rawRoot, filepath.FromSlash(src.Dest))
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create destination", err).
			WithContext("dir", dest)
	}

	archive := filepath.Join(dest, src.Archive()+".part")
	defer os.Remove(archive)

	var (
		size    int64
		digest  string
		lastErr error
		attempt int
	)
	for attempt = 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.logger.WarnContext(ctx, "Retrying download",
				slog.String("source", src.ID()),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		size, digest, lastErr = c.get(ctx, src.URL, archive)
		if lastErr == nil {
			break
		}
		if !retryable(lastErr) {
			break
		}
	}
	if attempt > c.cfg.Retries {
		attempt = c.cfg.Retries
	}
	if lastErr != nil {
		infrastructure.RecordError(ctx, lastErr)
		return nil, apperrors.NewNetworkError("failed to download "+src.ID(), lastErr).
			WithContext("url", src.URL).
			WithContext("attempts", attempt+1)
	}

	files, err := Extract(archive, dest)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to extract "+src.Archive(), err).
			WithContext("source", src.ID())
	}

	c.metrics.RecordDownload(ctx, string(src.Kind), size, attempt)
	res := &Result{
		Source:   src,
		Dir:      dest,
		Bytes:    size,
		Digest:   digest,
		Files:    files,
		Attempts: attempt + 1,
		Duration: time.Since(start),
	}
	c.logger.InfoContext(ctx, "Downloaded archive",
		slog.String("source", src.ID()),
		slog.Int64("bytes", size),
		slog.Int("files", len(files)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// get streams url into path and returns its size and BLAKE2b-256 digest.
func (c *Client) get(ctx context.Context, url, path string) (int64, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", &statusError{Code: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "zip") {
		return 0, "", fmt.Errorf("%w: content type %q", ErrNotZip, ct)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	h, _ := blake2b.New256(nil)
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if err != nil {
		return 0, "", err
	}
	if err := out.Close(); err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * c.cfg.BackoffBase
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotZip) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ValidZip reports whether path opens as a ZIP archive.
func ValidZip(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	r.Close()
	return true
}
