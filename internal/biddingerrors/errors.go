package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrNotFound             = errors.New("entity not found")
	ErrProductNotFound      = fmt.Errorf("product %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrReferentialIntegrity = errors.New("referenced entity does not exist")
	ErrDuplicateEntity      = errors.New("entity already exists")
	ErrConcurrencyConflict  = errors.New("concurrent update conflict")
	ErrValueOutOfRange      = errors.New("value out of range")
	ErrPersistence          = errors.New("persistence failure")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrNoBids         = errors.New("no bids found for product")
	ErrBidTooLow      = errors.New("bid amount too low")
	ErrAuctionEnded   = errors.New("auction has ended")
	ErrAlreadySettled = errors.New("product already settled")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidUser    = errors.New("invalid user")
	ErrInvalidFilter  = errors.New("invalid product filter")
)

// PersistenceError wraps a failure of the underlying store.
// It matches both ErrPersistence and the original cause with errors.Is.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err for the named store operation
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
