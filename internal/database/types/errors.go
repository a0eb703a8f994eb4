package types

import "fmt"

// PersistenceError wraps a storage backend I/O failure. Callers decide how
// to react; backends never swallow these silently.
type PersistenceError struct {
	Op  string // the storage operation that failed
	Err error
}

// NewPersistenceError wraps err as a persistence failure of the named operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
