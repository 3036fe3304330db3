package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrPermission    = errors.New("permission denied")
	ErrValidation    = errors.New("validation failed")
	ErrStateConflict = errors.New("state conflict")

	// ErrDuplicateConversation is soft: callers resolve it by re-reading the
	// earliest conversation for the post + participant pair.
	ErrDuplicateConversation = errors.New("duplicate conversation")

	ErrSelfConversation = fmt.Errorf("%w: conversation with yourself", ErrValidation)
	ErrInvalidEvidence  = fmt.Errorf("%w: malformed evidence url", ErrValidation)
	ErrNotARequest      = errors.New("message is not a matching request")
)
