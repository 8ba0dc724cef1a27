package indicators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ineqmx/internal/config"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/tabular"
)

// ErrNoToken is returned when the API token is not configured.
var ErrNoToken = errors.New("indicators token is not configured")

// NationalArea is the geographic code of the whole country.
const NationalArea = "00"

// StateAreas returns the area codes of the 32 states, "0100" to "3200".
func StateAreas() []string {
	areas := make([]string, 32)
	for i := range areas {
		areas[i] = fmt.Sprintf("%02d00", i+1)
	}
	return areas
}

// Client queries the INEGI indicators API.
type Client struct {
	http    *http.Client
	cfg     config.IndicatorsConfig
	limiter *rate.Limiter
	workers int
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)) }
}

// WithWorkers sets how many areas are fetched concurrently.
func WithWorkers(n int) Option {
	return func(c *Client) { c.workers = max(n, 1) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an indicators client.
func NewClient(cfg config.IndicatorsConfig, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 60 * time.Second},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = infrastructure.WithComponent(c.logger, "indicators")
	return c
}

// URL builds the request URL for area. The token is the last path segment.
func (c *Client) URL(area string, recent bool) string {
	return fmt.Sprintf("%s/%s/%s/%s/%t/%s/%s/%s?type=json",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		strings.Join(c.cfg.IDs, ","),
		c.cfg.Language,
		area,
		recent,
		c.cfg.Source,
		c.cfg.Version,
		url.PathEscape(c.cfg.Token),
	)
}

// Fetch returns the series of the configured indicators for one area.
func (c *Client) Fetch(ctx context.Context, area string) ([]Series, error) {
	if c.cfg.Token == "" {
		return nil, apperrors.NewConfigError("cannot query indicators", ErrNoToken)
	}
	if len(c.cfg.IDs) == 0 {
		return nil, apperrors.NewConfigError("cannot query indicators", errors.New("no indicator ids configured"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(area, false), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("indicators request failed", err).WithContext("area", area)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.NewNetworkError(
			fmt.Sprintf("indicators API returned status %d", resp.StatusCode),
			errors.New(strings.TrimSpace(string(body)))).
			WithContext("area", area)
	}

	var doc Response
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperrors.NewParsingError("invalid indicators response", err).WithContext("area", area)
	}
	c.logger.DebugContext(ctx, "Fetched indicators",
		slog.String("area", area),
		slog.Int("series", len(doc.Series)))
	return doc.Series, nil
}

// Flatten turns series into rows. The geographic key of a series is the
// COBER_GEO of its first observation, "N/A" when absent.
func Flatten(area string, series []Series) []Row {
	var rows []Row
	for _, s := range series {
		geo := "N/A"
		if len(s.Observations) > 0 && s.Observations[0].CoverGeo != "" {
			geo = s.Observations[0].CoverGeo
		}
		for _, o := range s.Observations {
			rows = append(rows, Row{
				Estado:          area,
				Indicador:       s.Indicator,
				Periodo:         o.TimePeriod,
				Valor:           string(o.Value),
				Unidad:          s.Unit,
				ClaveGeografica: geo,
			})
		}
	}
	return rows
}

// FetchAreas fetches every area and returns the rows in area order. Areas that
// fail are logged and skipped; the joined error lists them.
func (c *Client) FetchAreas(ctx context.Context, areas []string) ([]Row, error) {
	ctx, span := infrastructure.StartSpan(ctx, "indicators.fetch")
	defer span.End()

	perArea := make([][]Row, len(areas))
	errs := make([]error, len(areas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, area := range areas {
		g.Go(func() error {
			series, err := c.Fetch(gctx, area)
			if apperrors.TypeOf(err) == apperrors.ErrTypeConfig {
				return err
			}
			if err != nil {
				c.logger.WarnContext(gctx, "No data received for area",
					slog.String("area", area),
					slog.String("error", err.Error()))
				errs[i] = err
				return nil
			}
			perArea[i] = Flatten(area, series)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range perArea {
		rows = append(rows, r...)
	}
	return rows, errors.Join(errs...)
}

// Table lays rows out with Columns.
func Table(rows []Row) *tabular.Table {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return tabular.New(Columns, records)
}
