package shortener

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("mapping not found")
	ErrShortTaken = errors.New("short identifier already taken")
	ErrLongTaken  = errors.New("long url already mapped")
	ErrInvalidURL = errors.New("url must not be empty")
)

// Repository stores mappings.
type Repository interface {
	// FindByLong returns the mapping for long or ErrNotFound.
	FindByLong(ctx context.Context, long string) (*Mapping, error)
	// FindByShort returns the mapping for short or ErrNotFound.
	FindByShort(ctx context.Context, short Code) (*Mapping, error)
	// Insert stores a new mapping. Stores that enforce uniqueness report
	// ErrShortTaken or ErrLongTaken.
	Insert(ctx context.Context, mapping *Mapping) error
}

// VisitRepository stores visit counters.
type VisitRepository interface {
	// IncrementVisits atomically creates the counter at 1 or adds one to it,
	// returning the new value.
	IncrementVisits(ctx context.Context, short Code) (uint64, error)
	// Visits returns the counter value, zero when no counter exists.
	Visits(ctx context.Context, short Code) (uint64, error)
}

// StorageError reports a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
