package models

import "fmt"

// TransitionError is returned when an event is not valid for an entity's
// current status.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: cannot %s from %s", e.Entity, e.Event, e.From)
}
