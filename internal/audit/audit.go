// Package audit persists per-run LLM transcripts.
package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/posting-cli/internal/model"
)

// Sink receives a finished run.
type Sink interface {
	Save(ctx context.Context, run *model.Run) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, run *model.Run) error

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, run *model.Run) error { return f(ctx, run) }

// Multi fans a run out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, run *model.Run) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Save(ctx, run); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Discard drops runs.
var Discard Sink = SinkFunc(func(context.Context, *model.Run) error { return nil })

// FileSink writes one YAML transcript per run into Dir.
type FileSink struct {
	Dir string
	now func() time.Time
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "audit: create dir %s", dir)
	}
	return &FileSink{Dir: dir, now: time.Now}, nil
}

type transcript struct {
	Row         int              `yaml:"row"`
	RunID       string           `yaml:"run_id,omitempty"`
	GeneratedAt string           `yaml:"generated_at_utc"`
	Model       string           `yaml:"model"`
	URL         string           `yaml:"url,omitempty"`
	Outcome     model.Outcome    `yaml:"outcome"`
	Error       string           `yaml:"error,omitempty"`
	Notes       []string         `yaml:"notes,omitempty"`
	Exchanges   []model.Exchange `yaml:"exchanges"`
}

// FileName returns the transcript name for a row at t:
// row_0042_20240301_120000_UTC.yaml.
func FileName(row int, t time.Time) string {
	return fmt.Sprintf("row_%04d_%s_UTC.yaml", row, t.UTC().Format("20060102_150405"))
}

// Save implements Sink.
func (s *FileSink) Save(_ context.Context, run *model.Run) error {
	now := s.now().UTC()

	var modelID string
	if len(run.Exchanges) > 0 {
		modelID = run.Exchanges[0].Model
	}

	doc := transcript{
		Row:         run.RowID,
		RunID:       run.ID,
		GeneratedAt: now.Format("2006-01-02 15:04:05"),
		Model:       modelID,
		URL:         run.URL,
		Outcome:     run.Outcome,
		Error:       run.Error,
		Notes:       run.Notes,
		Exchanges:   run.Exchanges,
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return eris.Wrap(err, "audit: marshal transcript")
	}

	path := filepath.Join(s.Dir, FileName(run.RowID, now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "audit: write %s", path)
	}
	zap.L().Info("audit: transcript saved",
		zap.Int("row", run.RowID),
		zap.String("path", path),
		zap.Int("exchanges", len(run.Exchanges)),
	)
	return nil
}
