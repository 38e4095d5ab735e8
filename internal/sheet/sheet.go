// Package sheet reads posting rows from an XLSX workbook and writes the
// extraction results back, one row at a time.
package sheet

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
)

// ErrLocked is returned by Open when another process holds the workbook.
var ErrLocked = eris.New("sheet: workbook is locked by another process")

var reURL = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

// RowStore is the row-level view of the posting sheet the run loop needs.
type RowStore interface {
	UnprocessedRows() []int
	Row(id int) (model.Row, bool)
	ExtractURL(row model.Row) (string, bool)
	WriteResult(id int, rec model.Record, errMsg, verifier string) error
	WriteError(id int, msg string) error
	Save() error
	Stats() Stats
}

// Stats summarizes sheet progress.
type Stats struct {
	Total          int     `json:"total"`
	Filled         int     `json:"filled"`
	Errors         int     `json:"errors"`
	Pending        int     `json:"pending"`
	CompletionRate float64 `json:"completion_rate"`
}

// Workbook is an XLSX-backed RowStore. It holds an exclusive file lock
// from Open until Close and is not safe for concurrent use.
type Workbook struct {
	path    string
	file    *xlsx.File
	sheet   *xlsx.Sheet
	columns map[string]int
	lock    *flock.Flock
	warned  map[string]bool
}

type options struct {
	lockPath string
}

// Option configures Open.
type Option func(*options)

// WithLockPath overrides the lock file, which defaults to "<path>.lock".
func WithLockPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.lockPath = p
		}
	}
}

// Open locks and loads the named sheet of the workbook at path. An empty
// name selects the first sheet. The header row must contain the Notes,
// Source, Verifier and Error columns.
func Open(path, name string, opts ...Option) (*Workbook, error) {
	o := options{lockPath: path + ".lock"}
	for _, opt := range opts {
		opt(&o)
	}

	lock := flock.New(o.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: lock %s", o.lockPath)
	}
	if !ok {
		return nil, eris.Wrapf(ErrLocked, "sheet: %s", path)
	}

	wb, err := load(path, name)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	wb.lock = lock

	zap.L().Info("sheet: workbook loaded",
		zap.String("path", path),
		zap.String("sheet", wb.sheet.Name),
		zap.Int("rows", wb.Stats().Total),
	)
	return wb, nil
}

func load(path, name string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open workbook %s", path)
	}

	var sh *xlsx.Sheet
	if name != "" {
		s, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("sheet: sheet %q not found", name)
		}
		sh = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("sheet: workbook has no sheets")
		}
		sh = f.Sheets[0]
	}
	if len(sh.Rows) == 0 || sh.Rows[0] == nil {
		return nil, eris.Errorf("sheet: %q has no header row", sh.Name)
	}

	columns := make(map[string]int)
	for i, c := range sh.Rows[0].Cells {
		h := strings.TrimSpace(c.String())
		if h == "" {
			continue
		}
		if _, dup := columns[h]; !dup {
			columns[h] = i
		}
	}
	var missing []string
	for _, col := range model.RequiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("sheet: missing required columns: %s", strings.Join(missing, ", "))
	}

	return &Workbook{
		path:    path,
		file:    f,
		sheet:   sh,
		columns: columns,
		warned:  make(map[string]bool),
	}, nil
}

// Close releases the workbook lock. Unsaved changes are lost.
func (w *Workbook) Close() error {
	if w.lock == nil {
		return nil
	}
	return eris.Wrap(w.lock.Unlock(), "sheet: unlock")
}

// Path returns the workbook file.
func (w *Workbook) Path() string { return w.path }

// HasColumn reports whether the header contains column.
func (w *Workbook) HasColumn(column string) bool {
	_, ok := w.columns[column]
	return ok
}

func (w *Workbook) cell(id int, column string) string {
	idx, ok := w.columns[column]
	if !ok || id < 1 || id >= len(w.sheet.Rows) {
		return ""
	}
	row := w.sheet.Rows[id]
	if row == nil || idx >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[idx].String())
}

func (w *Workbook) blank(id int) bool {
	row := w.sheet.Rows[id]
	if row == nil {
		return true
	}
	for _, c := range row.Cells {
		if strings.TrimSpace(c.String()) != "" {
			return false
		}
	}
	return true
}

// dataRows returns the ids of every non-blank data row.
func (w *Workbook) dataRows() []int {
	var ids []int
	for id := 1; id < len(w.sheet.Rows); id++ {
		if !w.blank(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// UnprocessedRows returns the rows whose Verifier and Error cells are
// both empty, in sheet order.
func (w *Workbook) UnprocessedRows() []int {
	var ids []int
	for _, id := range w.dataRows() {
		if w.cell(id, model.ColumnVerifier) == "" && w.cell(id, model.ColumnError) == "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Row returns the cells of data row id keyed by header.
func (w *Workbook) Row(id int) (model.Row, bool) {
	if id < 1 || id >= len(w.sheet.Rows) || w.sheet.Rows[id] == nil {
		return model.Row{}, false
	}
	cells := make(map[string]string, len(w.columns))
	for col := range w.columns {
		cells[col] = w.cell(id, col)
	}
	return model.Row{ID: id, Cells: cells}, true
}

// ExtractURL finds the posting link of a row: the Notes cell when it is
// a URL, else the first URL inside Notes, else the Source cell when it
// is a URL.
func (w *Workbook) ExtractURL(row model.Row) (string, bool) {
	return ExtractURL(row)
}

// ExtractURL is the Workbook-independent form of Workbook.ExtractURL.
func ExtractURL(row model.Row) (string, bool) {
	notes := strings.TrimSpace(row.Cell(model.ColumnNotes))
	if isURL(notes) {
		return notes, true
	}
	if m := reURL.FindString(notes); m != "" {
		return m, true
	}
	if source := strings.TrimSpace(row.Cell(model.ColumnSource)); isURL(source) {
		return source, true
	}
	return "", false
}

func isURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (w *Workbook) set(id int, column, value string) bool {
	idx, ok := w.columns[column]
	if !ok {
		if !w.warned[column] {
			w.warned[column] = true
			zap.L().Warn("sheet: column not in header", zap.String("column", column))
		}
		return false
	}
	row := w.sheet.Rows[id]
	for len(row.Cells) <= idx {
		row.AddCell()
	}
	row.Cells[idx].SetString(value)
	return true
}

func (w *Workbook) checkRow(id int) error {
	if id < 1 || id >= len(w.sheet.Rows) || w.sheet.Rows[id] == nil {
		return eris.Errorf("sheet: invalid row %d", id)
	}
	return nil
}

// WriteResult stores rec in row id. Verifier is written only when
// non-empty, errMsg only when non-empty. Fields without a column are
// skipped with a warning.
func (w *Workbook) WriteResult(id int, rec model.Record, errMsg, verifier string) error {
	if err := w.checkRow(id); err != nil {
		return err
	}
	for _, f := range model.AllFields {
		if v, ok := rec[f]; ok {
			w.set(id, string(f), v)
		}
	}
	if verifier != "" {
		w.set(id, model.ColumnVerifier, verifier)
	}
	if errMsg != "" {
		w.set(id, model.ColumnError, errMsg)
	}
	zap.L().Info("sheet: row updated",
		zap.Int("row", id),
		zap.Bool("verified", verifier != ""),
		zap.Bool("with_error", errMsg != ""),
	)
	return nil
}

// WriteError sets only the Error cell of row id.
func (w *Workbook) WriteError(id int, msg string) error {
	if err := w.checkRow(id); err != nil {
		return err
	}
	w.set(id, model.ColumnError, msg)
	zap.L().Info("sheet: row error recorded", zap.Int("row", id), zap.String("error", msg))
	return nil
}

// Save writes the whole workbook, every sheet included, through a
// temporary file renamed over the original.
func (w *Workbook) Save() error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".posting-*.xlsx")
	if err != nil {
		return eris.Wrap(err, "sheet: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := w.file.Write(tmp); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "sheet: write workbook")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "sheet: close temp file")
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return eris.Wrapf(err, "sheet: replace %s", w.path)
	}
	zap.L().Debug("sheet: saved", zap.String("path", w.path))
	return nil
}

// Stats counts rows by state. A row with an Error counts as an error even
// when partially filled.
func (w *Workbook) Stats() Stats {
	var s Stats
	for _, id := range w.dataRows() {
		s.Total++
		switch {
		case w.cell(id, model.ColumnError) != "":
			s.Errors++
		case w.cell(id, model.ColumnVerifier) != "":
			s.Filled++
		}
	}
	s.Pending = s.Total - s.Filled - s.Errors
	if s.Total > 0 {
		s.CompletionRate = float64(s.Filled) / float64(s.Total) * 100
	}
	return s
}
