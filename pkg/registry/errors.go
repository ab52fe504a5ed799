package registry

import "fmt"

// ValidationError wraps a failed invariant with the component and id it
// applies to, matching the ValidationError shape used across the registry's
// write path.
type ValidationError struct {
	Component string // agent | tool | model_profile | workflow
	ID        string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q: field %q: %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Component, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError.
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}

// NotFoundError indicates a lookup for an unknown id within a kind.
type NotFoundError struct {
	Component string
	ID        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Component, e.ID)
}

// InUseError indicates a delete was refused because something still
// references the target (I3).
type InUseError struct {
	Component string
	ID        string
	UsedBy    string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %q cannot be deleted: still referenced by %s", e.Component, e.ID, e.UsedBy)
}
