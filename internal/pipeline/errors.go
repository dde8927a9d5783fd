package pipeline

import (
	"fmt"
)

// Stage names one step of the analysis pipeline
type Stage string

const (
	StageIdentify Stage = "identify"
	StageHistory  Stage = "history"
	StageNarrate  Stage = "narrate"
)

// StageError reports a failed stage. Identify and history failures abort the
// run; narrate failures are only ever reported through AnalysisResult.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// MalformedInputError is returned before any service call when the image
// cannot be sent as-is
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed input: " + e.Reason
}
