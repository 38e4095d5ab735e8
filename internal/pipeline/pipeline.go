// Package pipeline runs the three extraction stages over one posting,
// merges what succeeded and post-processes the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/audit"
	"github.com/sells-group/posting-cli/internal/contact"
	"github.com/sells-group/posting-cli/internal/cost"
	"github.com/sells-group/posting-cli/internal/llm"
	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/rules"
)

// ContactVerifier checks the stage 1 contact against the web.
// *contact.Verifier implements it.
type ContactVerifier interface {
	Verify(ctx context.Context, rec model.Record, source string) contact.Report
}

// Input is one text to analyze.
type Input struct {
	RowID int
	URL   string
	Text  string
}

// Result is everything one analysis produced.
type Result struct {
	RunID   string              `json:"run_id"`
	Outcome model.Outcome       `json:"outcome"`
	Record  model.Record        `json:"record"`
	Error   string              `json:"error,omitempty"`
	Notes   []string            `json:"notes,omitempty"`
	Stages  []model.StageResult `json:"stages"`
	Contact *contact.Report     `json:"contact,omitempty"`
	Usage   model.TokenUsage    `json:"usage"`
}

// OK reports whether any stage produced fields.
func (r *Result) OK() bool {
	return r.Outcome == model.OutcomeSuccess || r.Outcome == model.OutcomePartial
}

// Analyzer runs the staged extraction. It is not safe for concurrent use:
// the recorder holds one transcript at a time.
type Analyzer struct {
	llm      *llm.Recorder
	verifier ContactVerifier
	sink     audit.Sink
	costCalc *cost.Calculator
	newID    func() string
	now      func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSink sets where run transcripts go. The default discards them.
func WithSink(s audit.Sink) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.sink = s
		}
	}
}

// WithVerifier enables contact verification inside stage 1.
func WithVerifier(v ContactVerifier) Option {
	return func(a *Analyzer) { a.verifier = v }
}

// WithCostCalculator overrides the default pricing.
func WithCostCalculator(c *cost.Calculator) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.costCalc = c
		}
	}
}

// New creates an Analyzer. When c is not already an *llm.Recorder it is
// wrapped in one. Pass the same recorder to the contact verifier to keep
// its calls in the run transcript.
func New(c llm.Completer, opts ...Option) *Analyzer {
	rec, ok := c.(*llm.Recorder)
	if !ok {
		rec = llm.NewRecorder(c)
	}
	a := &Analyzer{
		llm:      rec,
		sink:     audit.Discard,
		costCalc: cost.NewCalculator(cost.DefaultRates()),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs every stage over text and returns whether any stage
// succeeded, the post-processed record and the joined stage errors.
// On total failure the record is empty.
func (a *Analyzer) Analyze(ctx context.Context, text string, rowID int) (bool, model.Record, string) {
	res := a.Process(ctx, Input{RowID: rowID, Text: text})
	return res.OK(), res.Record, res.Error
}

// runState is the per-call state of Process.
type runState struct {
	a      *Analyzer
	log    *zap.Logger
	stages []model.StageResult
	notes  []string
	report *contact.Report
}

// Process is Analyze with the full result. The transcript is saved to
// the sink exactly once, whatever the outcome.
func (a *Analyzer) Process(ctx context.Context, in Input) (res Result) {
	res = Result{RunID: a.newID(), Record: model.Record{}}
	st := &runState{
		a:   a,
		log: zap.L().With(zap.Int("row", in.RowID), zap.String("run_id", res.RunID)),
	}

	a.llm.Start(in.Text)
	usageBefore := a.llm.Usage()
	saved := false
	defer func() {
		if saved {
			return
		}
		saved = true
		res.Stages = st.stages
		res.Notes = st.notes
		res.Contact = st.report
		res.Usage = usageDelta(a.llm.Usage(), usageBefore)
		res.Usage = a.costCalc.Usage(a.llm.Model(), res.Usage)
		a.save(ctx, st, in, &res)
	}()
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = model.OutcomeFailure
			res.Record = model.Record{}
			res.Error = fmt.Sprintf("analysis panicked: %v", r)
			st.log.Error("pipeline: analysis panicked", zap.Any("panic", r))
		}
	}()

	st.log.Info("pipeline: starting analysis", zap.Int("chars", len(in.Text)))

	merged := model.Record{}
	var failures []string
	succeeded := 0
	for _, stage := range model.Stages {
		out := st.trackStage(stage, func() model.StageOutcome {
			return st.runStage(ctx, stage, in.Text)
		})
		if !out.Success {
			failures = append(failures, (&StageError{Stage: stage, Reason: out.Err}).Error())
			continue
		}
		succeeded++
		merged.Merge(out.Fields)
	}

	res.Outcome = model.OutcomeOf(succeeded, len(model.Stages))
	res.Error = strings.Join(failures, "; ")
	if res.Outcome == model.OutcomeFailure {
		st.log.Error("pipeline: all stages failed", zap.String("error", res.Error))
		return res
	}

	rec, err := rules.Postprocess(merged)
	if err != nil {
		// A bad deadline is kept as extracted; the row still counts.
		var fe *rules.FormatError
		if errors.As(err, &fe) {
			st.log.Warn("pipeline: deadline format", zap.String("deadline", fe.Value))
		} else {
			st.log.Warn("pipeline: post-processing", zap.Error(err))
		}
		st.notes = append(st.notes, err.Error())
	}
	res.Record = rec

	st.log.Info("pipeline: analysis complete",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("stages_ok", succeeded),
	)
	return res
}

func (a *Analyzer) save(ctx context.Context, st *runState, in Input, res *Result) {
	run := &model.Run{
		ID:        res.RunID,
		RowID:     in.RowID,
		URL:       in.URL,
		Outcome:   res.Outcome,
		Error:     res.Error,
		Notes:     res.Notes,
		Record:    res.Record,
		Exchanges: a.llm.Take(),
		Usage:     res.Usage,
		CostUSD:   res.Usage.Cost,
		CreatedAt: a.now().UTC(),
	}
	// Cancellation must not lose the transcript of a run that already ran.
	if err := a.sink.Save(context.WithoutCancel(ctx), run); err != nil {
		st.log.Error("pipeline: save transcript", zap.Error(err))
	}
}

// trackStage times a stage and logs how it ended.
func (st *runState) trackStage(stage model.Stage, fn func() model.StageOutcome) model.StageOutcome {
	log := st.log.With(zap.String("stage", stage.String()))
	log.Debug("pipeline: stage started", zap.String("status", string(model.StageStatusRunning)))

	start := time.Now()
	out := fn()
	duration := time.Since(start).Milliseconds()

	result := model.StageResult{Stage: stage, Duration: duration}
	if out.Success {
		result.Status = model.StageStatusComplete
		log.Info("pipeline: stage complete", zap.Int64("duration_ms", duration))
	} else {
		result.Status = model.StageStatusFailed
		result.Error = out.Err
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", duration),
			zap.String("error", out.Err),
		)
	}
	st.stages = append(st.stages, result)
	return out
}

func usageDelta(after, before model.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  after.InputTokens - before.InputTokens,
		OutputTokens: after.OutputTokens - before.OutputTokens,
	}
}
