package service

import (
	"errors"

	"github.com/oaiwrapper/oaiwrapper/internal/completion"
)

var (
	// ErrStore wraps credential and session store failures.
	ErrStore = errors.New("store failure")

	// ErrCompletion wraps upstream completion failures.
	ErrCompletion = completion.ErrCompletion

	// ErrTurnInProgress is returned while a turn is streaming for the user.
	ErrTurnInProgress = errors.New("a reply is still streaming")

	// ErrUnknownModel is returned for models no configured provider serves.
	ErrUnknownModel = errors.New("unknown model")

	// ErrEventsDisabled is returned when no event stream is configured.
	ErrEventsDisabled = errors.New("session events are not enabled")
)
