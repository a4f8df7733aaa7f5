package compositor

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a layer rank or name does not exist.
	ErrOutOfRange = errors.New("layer out of range")
	// ErrInvalidTTL is returned for ttl values below NoTTL or above MaxTTL.
	ErrInvalidTTL = errors.New("ttl must be -1 or a non-negative integer")
	// ErrClosed is returned when a layer of a closed Display is mutated.
	ErrClosed = errors.New("display is closed")
)

// DisplayWriteError reports that the physical driver failed while showing
// the rendered text. The in-memory state is already updated when this error
// is returned; any later mutation or Refresh retries the full clear+write.
type DisplayWriteError struct {
	Op    string // "clear" or "write"
	Text  string // rendered text that was being shown
	Cause error
}

func (e *DisplayWriteError) Error() string {
	return fmt.Sprintf("display %s failed: %v", e.Op, e.Cause)
}

func (e *DisplayWriteError) Unwrap() error {
	return e.Cause
}
