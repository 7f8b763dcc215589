package pipeline

import "fmt"

// Stage identifies where in the pipeline a run failed.
type Stage string

const (
	StageExtraction Stage = "extraction"
	// StageCorrection completes the stage enum; correction is pure table
	// lookup and never produces a stage error today.
	StageCorrection  Stage = "correction"
	StageTranslation Stage = "translation"
	StageSynthesis   Stage = "synthesis"
)

// Kind classifies a failure.
type Kind string

const (
	// KindInvalidInput marks caller mistakes caught before any external
	// call (missing file, unsupported extension).
	KindInvalidInput Kind = "invalid_input"
	// KindUpstream marks a collaborator call that failed or produced an
	// unusable artifact.
	KindUpstream Kind = "upstream"
)

// Error is a fatal pipeline failure tagged with the stage it occurred
// at, so the surrounding service can record status and keep whatever
// partial results earlier stages produced.
type Error struct {
	Stage Stage
	Kind  Kind
	Err   error
	// Partial carries whatever earlier stages produced (e.g. raw_text
	// extracted before translation failed). Nil when nothing was
	// computed yet. Persisting it is the caller's choice.
	Partial *Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageErr(stage Stage, kind Kind, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Err: err}
}
