package chat

import "errors"

// Error kinds surfaced by the services. Mutations fold these into ResType
// messages; reads log them and degrade to empty results.
var (
	// ErrValidation marks malformed arguments or unresolvable references.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a failed store operation.
	ErrPersistence = errors.New("persistence failed")
)
