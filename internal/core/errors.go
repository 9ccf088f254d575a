package core

import "errors"

var (
	// ErrStop reports that the program run was stopped. It is not a fault.
	ErrStop = errors.New("program stopped")

	ErrInvalidVariableType = errors.New("invalid variable type")
	ErrNotIncrementable    = errors.New("variable is not incrementable")
	ErrUnknownVariable     = errors.New("unknown variable")
	ErrAsset               = errors.New("asset failure")
	ErrUnknownEntity       = errors.New("unknown entity")
)

// IsStop reports whether err is, or wraps, ErrStop.
func IsStop(err error) bool {
	return errors.Is(err, ErrStop)
}
