package watcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/rollcall/attendance/internal/export"
	"github.com/rollcall/attendance/internal/reconcile"
	"github.com/rollcall/attendance/internal/types"
)

// SheetsClient is the subset of the spreadsheet API the remote source uses.
type SheetsClient interface {
	SpreadsheetTitle(ctx context.Context) (string, error)
	SheetTitles(ctx context.Context) ([]string, error)
	Values(ctx context.Context, sheet string) ([][]string, error)
}

// ClientFactory builds a SheetsClient from the stored credentials.
type ClientFactory func(ctx context.Context, cfg types.RemoteConfig) (SheetsClient, error)

// SheetsWriter is a SheetsClient that may also change the spreadsheet.
type SheetsWriter interface {
	SheetsClient
	// AddSheet creates an empty worksheet.
	AddSheet(ctx context.Context, title string) error
	// ReplaceValues clears a worksheet and writes grid from A1.
	ReplaceValues(ctx context.Context, sheet string, grid [][]string) error
}

// WriterFactory builds a SheetsWriter from the stored credentials.
type WriterFactory func(ctx context.Context, cfg types.RemoteConfig) (SheetsWriter, error)

// SheetsSource pulls "Sabbath <date>" worksheets from a remote spreadsheet.
// Every poll re-reads all dated worksheets; idempotent reconciliation makes
// unchanged sheets a no-op.
type SheetsSource struct {
	config    *ConfigStore
	newClient ClientFactory
	newWriter WriterFactory
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewSheetsSource creates a remote source. A nil factory uses the Google
// Sheets API.
func NewSheetsSource(config *ConfigStore, factory ClientFactory, logger logrus.FieldLogger) *SheetsSource {
	if factory == nil {
		factory = NewGoogleSheetsClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SheetsSource{
		config:    config,
		newClient: factory,
		newWriter: NewGoogleSheetsWriter,
		logger:    logger.WithField("source", "remote"),
		now:       time.Now,
	}
}

// Name implements Source.
func (s *SheetsSource) Name() string { return "remote" }

// Settings implements Source. Missing credentials count as disabled.
func (s *SheetsSource) Settings() (Settings, error) {
	cfg, err := s.config.Remote()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Enabled:    cfg.Enabled && cfg.Configured(),
		AutoImport: cfg.AutoImport,
		Interval:   time.Duration(cfg.EffectiveInterval()) * time.Second,
	}, nil
}

// Check implements Source.
func (s *SheetsSource) Check(ctx context.Context) ([]Unit, error) {
	return s.Fetch(ctx, "")
}

// Fetch reads the dated worksheets, or only the one for date when date is
// set. Auth and transport errors abort the whole fetch.
func (s *SheetsSource) Fetch(ctx context.Context, date string) ([]Unit, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if date != "" {
		if date, err = reconcile.NormalizeDate(date, now); err != nil {
			return nil, err
		}
	}

	titles, err := client.SheetTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list worksheets: %w", err)
	}

	var units []Unit
	for _, title := range titles {
		d, ok := reconcile.ParseSheetTitle(title, now)
		if !ok || (date != "" && d != date) {
			continue
		}
		grid, err := client.Values(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("failed to read worksheet %q: %w", title, err)
		}
		units = append(units, Unit{Label: title, Date: d, Rows: reconcile.RowsFromGrid(grid)})
	}
	if len(units) == 0 {
		s.logger.WithField("date", date).Debug("no dated worksheets found")
	}
	return units, nil
}

// TestConnection returns the spreadsheet title.
func (s *SheetsSource) TestConnection(ctx context.Context) (string, error) {
	client, err := s.client(ctx)
	if err != nil {
		return "", err
	}
	title, err := client.SpreadsheetTitle(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to reach spreadsheet: %w", err)
	}
	return title, nil
}

// Push writes worksheets to the spreadsheet, creating any that are missing
// and replacing the contents of the rest. It returns the titles written.
// Only credentials are required; the enabled flag is not consulted.
func (s *SheetsSource) Push(ctx context.Context, worksheets []export.Worksheet) ([]string, error) {
	cfg, err := s.credentials()
	if err != nil {
		return nil, err
	}
	w, err := s.newWriter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	titles, err := w.SheetTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list worksheets: %w", err)
	}
	existing := make(map[string]bool, len(titles))
	for _, t := range titles {
		existing[t] = true
	}

	var pushed []string
	for _, ws := range worksheets {
		if !existing[ws.Title] {
			if err := w.AddSheet(ctx, ws.Title); err != nil {
				return pushed, fmt.Errorf("failed to add worksheet %q: %w", ws.Title, err)
			}
			existing[ws.Title] = true
		}
		if err := w.ReplaceValues(ctx, ws.Title, ws.Grid); err != nil {
			return pushed, fmt.Errorf("failed to write worksheet %q: %w", ws.Title, err)
		}
		pushed = append(pushed, ws.Title)
		s.logger.WithFields(logrus.Fields{"sheet": ws.Title, "rows": len(ws.Grid)}).Info("worksheet pushed")
	}
	return pushed, nil
}

func (s *SheetsSource) credentials() (types.RemoteConfig, error) {
	cfg, err := s.config.Remote()
	if err != nil {
		return types.RemoteConfig{}, err
	}
	if !cfg.Configured() {
		return types.RemoteConfig{}, ErrNotConfigured
	}
	return cfg, nil
}

func (s *SheetsSource) client(ctx context.Context) (SheetsClient, error) {
	cfg, err := s.credentials()
	if err != nil {
		return nil, err
	}
	client, err := s.newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return client, nil
}

// googleSheets implements SheetsClient over the Sheets v4 API.
type googleSheets struct {
	svc *sheets.Service
	id  string
}

// NewGoogleSheetsClient authenticates as the configured service account
// with read-only scope.
func NewGoogleSheetsClient(ctx context.Context, cfg types.RemoteConfig) (SheetsClient, error) {
	return newGoogleSheets(ctx, cfg, sheets.SpreadsheetsReadonlyScope)
}

// NewGoogleSheetsWriter authenticates as the configured service account
// with read-write scope.
func NewGoogleSheetsWriter(ctx context.Context, cfg types.RemoteConfig) (SheetsWriter, error) {
	return newGoogleSheets(ctx, cfg, sheets.SpreadsheetsScope)
}

func newGoogleSheets(ctx context.Context, cfg types.RemoteConfig, scope string) (*googleSheets, error) {
	conf := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")),
		Scopes:     []string{scope},
		TokenURL:   google.JWTTokenURL,
	}
	svc, err := sheets.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
	if err != nil {
		return nil, err
	}
	return &googleSheets{svc: svc, id: cfg.ResourceID}, nil
}

func (g *googleSheets) SpreadsheetTitle(ctx context.Context) (string, error) {
	doc, err := g.svc.Spreadsheets.Get(g.id).Fields("properties.title").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if doc.Properties == nil {
		return "", nil
	}
	return doc.Properties.Title, nil
}

func (g *googleSheets) SheetTitles(ctx context.Context) ([]string, error) {
	doc, err := g.svc.Spreadsheets.Get(g.id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(doc.Sheets))
	for _, sh := range doc.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func sheetRange(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func (g *googleSheets) AddSheet(ctx context.Context, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		}},
	}
	_, err := g.svc.Spreadsheets.BatchUpdate(g.id, req).Context(ctx).Do()
	return err
}

func (g *googleSheets) ReplaceValues(ctx context.Context, sheet string, grid [][]string) error {
	rng := sheetRange(sheet)
	if _, err := g.svc.Spreadsheets.Values.Clear(g.id, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return err
	}
	values := make([][]interface{}, len(grid))
	for i, row := range grid {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		values[i] = cells
	}
	_, err := g.svc.Spreadsheets.Values.Update(g.id, rng+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleSheets) Values(ctx context.Context, sheet string) ([][]string, error) {
	rng := sheetRange(sheet)
	vr, err := g.svc.Spreadsheets.Values.Get(g.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	grid := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		grid[i] = cells
	}
	return grid, nil
}
