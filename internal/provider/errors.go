package provider

import "fmt"

// Error is returned for store failures when ThrowOnError is set
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not %s session %q: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
