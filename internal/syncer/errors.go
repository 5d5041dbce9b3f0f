package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoteNotFound indicates the mutation target is absent from the local collection.
	ErrNoteNotFound = errors.New("syncer: note not found")

	errMissingOwner       = errors.New("owner id is required")
	errMissingNoteID      = errors.New("note id is required")
	errMissingNoteStore   = errors.New("note store is required")
	errMissingLedgerStore = errors.New("ledger store is required")
)

// ServiceError carries a stable code of the form syncer.<operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
