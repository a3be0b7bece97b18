package token

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrSignatureInvalid = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrEmptySecret      = errors.New("token secret must not be empty")
	ErrEncode           = errors.New("failed to encode token payload")
)
