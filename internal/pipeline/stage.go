package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/contact"
	"github.com/sells-group/posting-cli/internal/llm"
	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/validate"
)

const (
	minAreas = 1
	maxAreas = 5
)

// StageError is a failed stage as it appears in the run's error summary.
type StageError struct {
	Stage  model.Stage
	Reason string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d failed: %s", int(e.Stage), e.Reason)
}

// runStage calls the LLM for one stage and checks its answer. Only the
// stage's own fields are kept. It never panics.
func (st *runState) runStage(ctx context.Context, stage model.Stage, text string) (out model.StageOutcome) {
	out.Stage = stage
	fail := func(format string, args ...any) model.StageOutcome {
		return model.StageOutcome{Stage: stage, Err: fmt.Sprintf(format, args...)}
	}
	defer func() {
		if r := recover(); r != nil {
			st.log.Error("pipeline: stage panicked", zap.Int("stage", int(stage)), zap.Any("panic", r))
			out = fail("stage panicked: %v", r)
		}
	}()

	p, ok := stagePrompts[stage]
	if !ok {
		return fail("unknown stage")
	}

	if err := st.a.llm.ResetContext(ctx); err != nil {
		st.log.Warn("pipeline: context reset failed", zap.Error(err))
	}

	resp, err := st.a.llm.Complete(llm.WithLabel(ctx, fmt.Sprintf("stage%d", int(stage))), p.build(text), p.system)
	if err != nil {
		return fail("empty LLM response: %v", err)
	}
	if strings.TrimSpace(resp) == "" {
		return fail("empty LLM response")
	}

	obj, err := llm.ParseJSON(resp)
	if err != nil {
		return fail("invalid JSON in LLM response")
	}
	if !validate.Stage(obj, stage) {
		return fail("missing required fields: %s", joinFields(validate.Missing(obj, stage)))
	}

	fields := make(model.Record, len(model.FieldsFor(stage)))
	for _, f := range model.FieldsFor(stage) {
		fields[f] = llm.StringValue(obj[string(f)])
	}

	switch stage {
	case model.StageBasic:
		fields.Merge(st.verifyContact(ctx, fields, text))
	case model.StageClassify:
		n := len(fields.Flagged(model.AreaFields))
		if n < minAreas {
			return fail("no research area flagged (%d matched), at least %d required", n, minAreas)
		}
		if n > maxAreas {
			return fail("%d research areas flagged, exceeds the limit of %d", n, maxAreas)
		}
	case model.StageLocalize:
		if strings.TrimSpace(fields.Get(model.FieldLabel1)) == "" {
			return fail("%s is empty, at least one subject label is required", model.FieldLabel1)
		}
	}

	out.Success = true
	out.Fields = fields
	return out
}

// verifyContact returns the contact patch for stage 1 fields. A failing
// or panicking verifier yields no patch and never fails the stage.
func (st *runState) verifyContact(ctx context.Context, fields model.Record, text string) (patch model.Record) {
	if st.a.verifier == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			st.log.Error("pipeline: contact verification panicked", zap.Any("panic", r))
			st.notes = append(st.notes, fmt.Sprintf("contact verification: panicked: %v", r))
			patch = nil
		}
	}()

	report := st.a.verifier.Verify(ctx, fields.Clone(), text)
	st.report = &report
	switch report.State {
	case contact.StateSkip:
		return nil
	case contact.StateFailed:
		st.notes = append(st.notes, "contact verification: "+report.Err)
		return nil
	}
	st.notes = append(st.notes, fmt.Sprintf("contact verification: %s (%s)", report.State, report.Decision.Reason))
	if report.State != contact.StateSynthesized {
		return nil
	}
	if report.Result.Notes != "" {
		st.notes = append(st.notes, report.Result.Notes)
	}
	return report.Patch
}

func joinFields(fields []model.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
