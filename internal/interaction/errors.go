package interaction

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrInvalidKind = errors.New("invalid interaction kind")

	ErrInvalidTargetType = errors.New("invalid target type")
)
