package alias

import "fmt"

// CircularityError is returned when an alias would resolve back to itself.
type CircularityError struct {
	Name  string
	Alias string
}

func (e *CircularityError) Error() string {
	return fmt.Sprintf("alias: cannot register alias %q for name %q: circular reference, %q is already a direct or indirect alias for %q",
		e.Alias, e.Name, e.Name, e.Alias)
}

// ConflictError is returned when overriding is disabled and an alias is
// already bound to a different name.
type ConflictError struct {
	Alias    string
	Name     string
	Existing string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("alias: cannot define alias %q for name %q: already registered for name %q",
		e.Alias, e.Name, e.Existing)
}

// NotFoundError is returned when removing an alias that is not registered.
type NotFoundError struct {
	Alias string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alias: no alias %q registered", e.Alias)
}
