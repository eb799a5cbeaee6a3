package graph

import "fmt"

// ReferenceError reports an operation against an id that names no live or
// resolvable element.
type ReferenceError struct {
	ID ID
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("no element with id %s", e.ID)
}

// InvalidReferenceError reports an edge whose endpoint does not exist.
type InvalidReferenceError struct {
	Edge     ID
	Endpoint ID
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("edge %s references nonexistent endpoint %s", e.Edge, e.Endpoint)
}
