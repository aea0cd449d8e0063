package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/timetable-scheduler/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested schedule does not exist.
	ErrNotFound = errors.New("application: schedule not found")
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ConflictError rejects a mutation whose entries collide with each other or
// with previously accepted schedules. The schedule is not stored.
type ConflictError struct {
	Scope     scheduler.ConflictScope
	Conflicts []scheduler.Conflict
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil || len(c.Conflicts) == 0 {
		return "schedule conflicts detected"
	}
	return fmt.Sprintf("%d schedule conflict(s) detected", len(c.Conflicts))
}

// Messages returns the human-readable conflict descriptions in detection
// order.
func (c *ConflictError) Messages() []string {
	if c == nil {
		return nil
	}
	return scheduler.Descriptions(c.Conflicts)
}
