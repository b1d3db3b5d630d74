package container

import (
	"fmt"
	"reflect"
)

// BindingNotFoundError is returned by Make for a name with neither a binding
// nor an instance.
type BindingNotFoundError struct {
	Name string
}

func (e *BindingNotFoundError) Error() string {
	return fmt.Sprintf("container: no binding registered for [%s]", e.Name)
}

// CircularDependsOnError reports a DependsOn declaration that closes a cycle.
type CircularDependsOnError struct {
	Name      string
	DependsOn string
}

func (e *CircularDependsOnError) Error() string {
	return fmt.Sprintf("container: circular depends-on relationship between [%s] and [%s]", e.Name, e.DependsOn)
}

// TypeMismatchError is returned by Resolve when the instance is not a T.
type TypeMismatchError struct {
	Name string
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("container: [%s] resolved to %v, want %v", e.Name, e.Got, e.Want)
}
