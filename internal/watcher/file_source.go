package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/rollcall/attendance/internal/reconcile"
)

// DefaultDebounce is how long file events settle before a nudge.
const DefaultDebounce = 500 * time.Millisecond

// Signature identifies a file version.
type Signature struct {
	ModTime time.Time
	Size    int64
}

// FileSource reports new and changed spreadsheet files in the watch
// directory.
type FileSource struct {
	config   *ConfigStore
	logger   logrus.FieldLogger
	now      func() time.Time
	debounce time.Duration

	mu         sync.Mutex
	signatures map[string]Signature
}

// NewFileSource creates a source that reads its directory from config.
func NewFileSource(config *ConfigStore, logger logrus.FieldLogger) *FileSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileSource{
		config:     config,
		logger:     logger.WithField("source", "file"),
		now:        time.Now,
		debounce:   DefaultDebounce,
		signatures: make(map[string]Signature),
	}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Settings implements Source.
func (s *FileSource) Settings() (Settings, error) {
	cfg, err := s.config.Watcher()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Enabled:    cfg.Enabled,
		AutoImport: cfg.AutoImport,
		Interval:   time.Duration(cfg.EffectiveInterval()) * time.Second,
	}, nil
}

// Reset forgets every signature, so the next check re-imports all files.
func (s *FileSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures = make(map[string]Signature)
}

// Signatures returns a copy of the known file signatures.
func (s *FileSource) Signatures() map[string]Signature {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Signature, len(s.signatures))
	for k, v := range s.signatures {
		out[k] = v
	}
	return out
}

// Check implements Source. A file is reported the first time it is seen
// and whenever its modification time or size changes.
func (s *FileSource) Check(ctx context.Context) ([]Unit, error) {
	cfg, err := s.config.Watcher()
	if err != nil {
		return nil, err
	}
	files, err := spreadsheetFiles(cfg.WatchDirectory)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("files", len(files)).Debug("checking spreadsheet files for changes")

	var units []Unit
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.changed(path) {
			continue
		}
		s.logger.WithField("file", filepath.Base(path)).Info("change detected")
		units = append(units, ReadWorkbook(path, "", s.now())...)
	}
	return units, nil
}

// changed compares the file's signature with the last one seen and records
// the new one.
func (s *FileSource) changed(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.WithError(err).WithField("file", path).Warn("failed to stat file")
		return false
	}
	sig := Signature{ModTime: info.ModTime(), Size: info.Size()}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.signatures[path]
	if seen && prev.ModTime.Equal(sig.ModTime) && prev.Size == sig.Size {
		return false
	}
	s.signatures[path] = sig
	return true
}

// Watch implements Nudger. Spreadsheet events in the watch directory are
// coalesced for the debounce window and then reported through nudge.
func (s *FileSource) Watch(ctx context.Context, nudge func()) error {
	cfg, err := s.config.Watcher()
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(cfg.WatchDirectory); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", cfg.WatchDirectory, err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || !isSpreadsheet(event.Name) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(s.debounce)
				} else {
					timer.Reset(s.debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				nudge()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("file watcher error")
			}
		}
	}()
	return nil
}

func isSpreadsheet(name string) bool {
	if strings.HasPrefix(filepath.Base(name), "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

func spreadsheetFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isSpreadsheet(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

var (
	isoInName   = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	slashInName = regexp.MustCompile(`(\d{1,2})[-_.](\d{1,2})(?:[-_.](\d{4}|\d{2}))?`)
)

// dateFromFileName finds a date in a file name such as
// "attendance-2025-01-04.xlsx" or "Sabbath 1-4-25.xlsx".
func dateFromFileName(path string, now time.Time) (string, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := isoInName.FindString(base); m != "" {
		if d, err := reconcile.NormalizeDate(m, now); err == nil {
			return d, true
		}
	}
	if m := slashInName.FindStringSubmatch(base); m != nil {
		raw := m[1] + "/" + m[2]
		if m[3] != "" {
			raw += "/" + m[3]
		}
		if d, err := reconcile.NormalizeDate(raw, now); err == nil {
			return d, true
		}
	}
	return "", false
}

// ErrNoDate means a workbook gave no way to tell which date its rows are for.
var ErrNoDate = errors.New("no attendance date in workbook")

// ReadWorkbook reads a spreadsheet into units. When date is set every row
// is applied to it. Otherwise each "Sabbath <date>" sheet is one unit; a
// workbook without such sheets uses its first sheet with the date taken
// from the file name, or failing that from each row's Sabbath Date column.
// Read failures are reported as a single unit with Err set.
func ReadWorkbook(path, date string, now time.Time) []Unit {
	label := filepath.Base(path)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return []Unit{{Label: label, Err: fmt.Errorf("failed to open workbook: %w", err)}}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []Unit{{Label: label, Err: errors.New("workbook has no sheets")}}
	}

	if date != "" {
		d, err := reconcile.NormalizeDate(date, now)
		if err != nil {
			return []Unit{{Label: label, Err: err}}
		}
		return []Unit{sheetUnit(f, sheets[0], label, d)}
	}

	var units []Unit
	for _, name := range sheets {
		if d, ok := reconcile.ParseSheetTitle(name, now); ok {
			units = append(units, sheetUnit(f, name, label+"#"+name, d))
		}
	}
	if len(units) > 0 {
		return units
	}

	if d, ok := dateFromFileName(path, now); ok {
		return []Unit{sheetUnit(f, sheets[0], label, d)}
	}
	return unitsByDateColumn(f, sheets[0], label, now)
}

func sheetUnit(f *excelize.File, sheet, label, date string) Unit {
	grid, err := f.GetRows(sheet)
	if err != nil {
		return Unit{Label: label, Date: date, Err: fmt.Errorf("failed to read sheet %q: %w", sheet, err)}
	}
	return Unit{Label: label, Date: date, Rows: reconcile.RowsFromGrid(grid)}
}

// unitsByDateColumn groups the first sheet's rows by their Sabbath Date
// value, in order of first appearance.
func unitsByDateColumn(f *excelize.File, sheet, label string, now time.Time) []Unit {
	grid, err := f.GetRows(sheet)
	if err != nil {
		return []Unit{{Label: label, Err: fmt.Errorf("failed to read sheet %q: %w", sheet, err)}}
	}

	groups := make(map[string]*Unit)
	var order []string
	var bad []string
	for _, row := range reconcile.RowsFromGrid(grid) {
		raw := row.Get(reconcile.ColDate)
		if raw == "" {
			continue
		}
		d, err := reconcile.NormalizeDate(raw, now)
		if err != nil {
			bad = append(bad, raw)
			continue
		}
		u, ok := groups[d]
		if !ok {
			u = &Unit{Label: label + "@" + d, Date: d}
			groups[d] = u
			order = append(order, d)
		}
		u.Rows = append(u.Rows, row)
	}

	units := make([]Unit, 0, len(order)+1)
	for _, d := range order {
		units = append(units, *groups[d])
	}
	if len(bad) > 0 {
		units = append(units, Unit{Label: label, Err: fmt.Errorf("unrecognized Sabbath Date values: %s", strings.Join(bad, ", "))})
	}
	if len(units) == 0 {
		units = append(units, Unit{Label: label, Err: ErrNoDate})
	}
	return units
}
