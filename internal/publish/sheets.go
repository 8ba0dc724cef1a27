package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/tabular"
)

// Publisher writes tables into one spreadsheet.
type Publisher struct {
	svc           *sheets.Service
	spreadsheetID string
	prefix        string
	logger        *slog.Logger
}

// NewPublisher creates a Sheets client from the configured service account
// file. Extra client options are appended after the credentials.
func NewPublisher(ctx context.Context, cfg config.PublishConfig, logger *slog.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if cfg.SpreadsheetID == "" {
		return nil, apperrors.NewConfigError("publish requires a spreadsheet id", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientOpts := make([]option.ClientOption, 0, len(opts)+1)
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to create sheets service", err)
	}
	return &Publisher{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		prefix:        cfg.SheetName,
		logger:        infrastructure.WithComponent(logger, "publish"),
	}, nil
}

// SheetTitle names the tab of a dataset level, e.g. resultados_enigh_estatal.
func SheetTitle(prefix string, kind dataset.Kind, level dataset.Level) string {
	title := fmt.Sprintf("%s_%s", kind, level.Sheet())
	if prefix != "" {
		title = prefix + "_" + title
	}
	return title
}

// Values converts a table to sheet rows. Numeric cells are sent as numbers.
func Values(t *tabular.Table) [][]interface{} {
	out := make([][]interface{}, 0, t.Len()+1)
	header := make([]interface{}, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	out = append(out, header)
	for _, row := range t.Rows {
		cells := make([]interface{}, len(t.Header))
		for i := range t.Header {
			if f, err := strconv.ParseFloat(row[i], 64); err == nil && !isCode(t.Header[i]) {
				cells[i] = f
			} else {
				cells[i] = row[i]
			}
		}
		out = append(out, cells)
	}
	return out
}

func isCode(column string) bool {
	switch column {
	case "entidad", "municipio", "cvegeo", "CLAVE_GEOGRAFICA", "ESTADO":
		return true
	}
	return false
}

// Publish replaces the content of the tab for kind and level with table.
func (p *Publisher) Publish(ctx context.Context, kind dataset.Kind, level dataset.Level, table *tabular.Table) error {
	return p.PublishSheet(ctx, SheetTitle(p.prefix, kind, level), table)
}

// PublishSheet replaces the content of the tab named title, creating it when
// it does not exist.
func (p *Publisher) PublishSheet(ctx context.Context, title string, table *tabular.Table) error {
	ctx, span := infrastructure.StartSpan(ctx, "publish.sheet")
	defer span.End()

	if err := p.ensureSheet(ctx, title); err != nil {
		return err
	}

	if _, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, title, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return apperrors.NewNetworkError("failed to clear sheet", err).WithContext("sheet", title)
	}

	vr := &sheets.ValueRange{Values: Values(table)}
	resp, err := p.svc.Spreadsheets.Values.Update(p.spreadsheetID, title+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return apperrors.NewNetworkError("failed to update sheet", err).WithContext("sheet", title)
	}

	p.logger.InfoContext(ctx, "Published table",
		slog.String("sheet", title),
		slog.Int64("updated_rows", resp.UpdatedRows),
		slog.Int64("updated_cells", resp.UpdatedCells))
	return nil
}

func (p *Publisher) ensureSheet(ctx context.Context, title string) error {
	ss, err := p.svc.Spreadsheets.Get(p.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return apperrors.NewNetworkError("failed to read spreadsheet", err).
			WithContext("spreadsheet_id", p.spreadsheetID)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := p.svc.Spreadsheets.BatchUpdate(p.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return apperrors.NewNetworkError("failed to add sheet", err).WithContext("sheet", title)
	}
	p.logger.InfoContext(ctx, "Created sheet", slog.String("sheet", title))
	return nil
}
