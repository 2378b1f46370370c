package elemring

import "github.com/pkg/errors"

// Sentinel errors. Callers match them with errors.Is; returned values may
// carry extra context via wrapping.
var (
	// ErrInvalidConfig is returned by New when capacity or element size is
	// below the minimum usable value.
	ErrInvalidConfig = errors.New("capacity must be >= 2 and element size >= 1")

	// ErrInvalidArgument is returned when a nil ring or an undersized data
	// slice is passed to an operation.
	ErrInvalidArgument = errors.New("nil ring or undersized data slice")

	// ErrInsufficientSpace is returned by Write/WriteFromISR when fewer free
	// slots are available than requested. Nothing is written.
	ErrInsufficientSpace = errors.New("not enough free slots")

	// ErrInsufficientData is returned by Read/ReadFromISR/Peek when fewer
	// elements are buffered than requested. Nothing is consumed.
	ErrInsufficientData = errors.New("not enough buffered elements")
)
