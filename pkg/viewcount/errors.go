package viewcount

import "errors"

var (
	ErrEntityIDRequired = errors.New("viewcount: entity id is required")
	ErrEntityNotFound   = errors.New("viewcount: entity not found")
	ErrCounterNil       = errors.New("viewcount: counter is nil")
)
