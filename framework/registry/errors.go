package registry

import (
	"errors"
	"fmt"
)

// ErrStateChanged may be returned (or wrapped) by an ObjectFactory whose
// construction was overtaken by another path. GetOrCreate then returns the
// finished instance if one was installed meanwhile.
var ErrStateChanged = errors.New("registry: state changed during construction")

// ErrProducerNotReady may be returned by a Producer that cannot yet produce
// because its own construction is incomplete. It is surfaced as a
// CurrentlyInCreationError.
var ErrProducerNotReady = errors.New("registry: producer not initialized")

// DuplicateRegistrationError is returned by Register when a finished instance
// already exists under the name.
type DuplicateRegistrationError struct {
	Name     string
	Existing any
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("registry: could not register object under name %q: there is already object [%v] bound", e.Name, e.Existing)
}

// CurrentlyInCreationError signals an unresolvable construction cycle.
type CurrentlyInCreationError struct {
	Name   string
	Reason string
}

func (e *CurrentlyInCreationError) Error() string {
	msg := fmt.Sprintf("registry: requested singleton %q is currently in creation: is there an unresolvable circular reference?", e.Name)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// CreationNotAllowedError is returned when construction is requested while
// the registry is shutting down or closed.
type CreationNotAllowedError struct {
	Name string
}

func (e *CreationNotAllowedError) Error() string {
	return fmt.Sprintf("registry: creation of singleton %q not allowed while singletons are in destruction", e.Name)
}

// CreationError wraps a factory or post-processing failure. Suppressed holds
// non-fatal errors recorded during the same outermost construction.
type CreationError struct {
	Name       string
	Err        error
	Suppressed []error
}

func (e *CreationError) Error() string {
	msg := fmt.Sprintf("registry: error creating singleton %q: %v", e.Name, e.Err)
	if n := len(e.Suppressed); n > 0 {
		msg += fmt.Sprintf(" (%d related error(s))", n)
	}
	return msg
}

func (e *CreationError) Unwrap() error { return e.Err }

// DisposalActionError describes a failed disposal action. It is logged and
// reported in a DisposalReport, never returned from DisposeOne or ShutdownAll.
type DisposalActionError struct {
	Name string
	Err  error
}

func (e *DisposalActionError) Error() string {
	return fmt.Sprintf("registry: disposal action for %q failed: %v", e.Name, e.Err)
}

func (e *DisposalActionError) Unwrap() error { return e.Err }
