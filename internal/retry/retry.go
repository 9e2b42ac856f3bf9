// Package retry classifies failures and runs bounded retry loops.
package retry

import (
	"context"
	"errors"

	"github.com/exezbcz/paraport/internal/domain/model"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

// Requests rejected for their content fail the same way on every attempt.
var terminalErrors = []struct {
	err    error
	reason string
}{
	{model.ErrInvalidParams, "invalid_params"},
	{model.ErrConfigValidation, "config_validation"},
}

// Classify decides whether err may succeed on retry. Unclassified errors
// are transient.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	for _, t := range terminalErrors {
		if errors.Is(err, t.err) {
			return Decision{Class: ClassTerminal, Reason: t.reason}
		}
	}

	return Decision{Class: ClassTransient, Reason: "unknown_transient_default"}
}
