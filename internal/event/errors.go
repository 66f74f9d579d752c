package event

import "errors"

var (
	ErrInvalidEventID = errors.New("invalid event id")

	ErrInvalidContactID = errors.New("invalid contact id")

	ErrInvalidTargetID = errors.New("invalid target id")

	ErrMissingOccurredAt = errors.New("missing occurrence time")
)
