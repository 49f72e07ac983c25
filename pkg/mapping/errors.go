package mapping

import "errors"

var (
	// ErrInvalidReference indicates a mapping reference that does not follow
	// the "input.<path>" / "steps.<stepID>.<path>" grammar.
	ErrInvalidReference = errors.New("invalid mapping reference")

	// ErrUnresolvedReference indicates a reference to a step or path that
	// does not exist.
	ErrUnresolvedReference = errors.New("unresolved mapping reference")

	// ErrInvalidStepGraph indicates broken step ordering or a forward/self
	// reference in a step's input mapping.
	ErrInvalidStepGraph = errors.New("invalid step graph")
)
