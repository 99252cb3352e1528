package model

import "errors"

var (
	// ErrNotWarmedUp is returned by a feature window holding fewer samples
	// than its capacity. The controller skips the tick when it sees it.
	ErrNotWarmedUp = errors.New("feature window not warmed up")

	// ErrUnknownMode is returned when a mode has no policy table entry or a
	// mode name cannot be parsed.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrInvalidModeParams reports a row whose cooling threshold is above its
	// hard temperature limit.
	ErrInvalidModeParams = errors.New("invalid mode params")

	// ErrMissingCustomParams is returned when the Custom mode is requested but
	// no parameters were supplied for it.
	ErrMissingCustomParams = errors.New("custom mode requires explicit params")

	// ErrOracleFailure wraps errors and timeouts coming from the prediction
	// oracle or the mode classifier.
	ErrOracleFailure = errors.New("oracle failure")

	// ErrInvalidInput reports a NaN or infinite requested current.
	ErrInvalidInput = errors.New("invalid controller input")

	// ErrInvalidState is returned on an illegal controller lifecycle transition.
	ErrInvalidState = errors.New("invalid controller state")
)
