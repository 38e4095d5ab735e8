package model

import "fmt"

// Stage identifies one of the three extraction passes.
type Stage int

const (
	StageBasic    Stage = 1 // deadline, headcount, direction, contact
	StageClassify Stage = 2 // position, event and research-area flags
	StageLocalize Stage = 3 // Chinese names and labels
)

// Stages is the execution order.
var Stages = []Stage{StageBasic, StageClassify, StageLocalize}

// String returns the stage name used in logs.
func (s Stage) String() string {
	switch s {
	case StageBasic:
		return "basic_info"
	case StageClassify:
		return "classification"
	case StageLocalize:
		return "localization"
	}
	return fmt.Sprintf("stage_%d", int(s))
}

// StageStatus is the logged state of a stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// StageOutcome is the result of a single stage invocation.
type StageOutcome struct {
	Stage   Stage  `json:"stage"`
	Success bool   `json:"success"`
	Fields  Record `json:"fields,omitempty"`
	Err     string `json:"error,omitempty"`
}

// StageResult records timing for a stage, mirroring the logged fields.
type StageResult struct {
	Stage    Stage       `json:"stage"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// Outcome summarizes a full analysis.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure:
		return true
	}
	return false
}

// OutcomeOf derives the outcome from stage success counts.
func OutcomeOf(succeeded, total int) Outcome {
	switch {
	case total > 0 && succeeded == total:
		return OutcomeSuccess
	case succeeded > 0:
		return OutcomePartial
	}
	return OutcomeFailure
}
