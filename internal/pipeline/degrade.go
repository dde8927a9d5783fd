package pipeline

import (
	"fmt"
	"log/slog"
)

// Degrade runs fn and converts any error or panic into sentinel.
//
// The returned error describes what was swallowed and is meant for logs and
// reports only: a non-nil error never means the caller should stop.
func Degrade[T any](stage Stage, sentinel T, fn func() (T, error)) (result T, swallowed error) {
	defer func() {
		if r := recover(); r != nil {
			result = sentinel
			swallowed = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
		if swallowed != nil {
			slog.Warn("Stage degraded", "stage", stage, "err", swallowed)
		}
	}()

	v, err := fn()
	if err != nil {
		return sentinel, &StageError{Stage: stage, Err: err}
	}
	return v, nil
}
