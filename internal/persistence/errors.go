package persistence

import "errors"

// ErrNotFound is returned when the requested schedule does not exist, either
// because it was never created or because it has been deleted. Callers match
// it with errors.Is.
var ErrNotFound = errors.New("persistence: schedule not found")
