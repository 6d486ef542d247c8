package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// Kinds returned by the message lifecycle and conversation services.
	// The hub decides which of them reach the client.
	ErrUnauthorized     = fmt.Errorf("actor is not allowed to perform this operation")
	ErrNotFound         = fmt.Errorf("not found")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrMessageDeleted   = fmt.Errorf("message is deleted")
	ErrSelfConversation = fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidArgument)
	ErrContentTooLong   = fmt.Errorf("%w: content is too long", ErrInvalidArgument)
	ErrBlankContent     = fmt.Errorf("%w: content must not be blank", ErrInvalidArgument)
	ErrInvalidUserID    = fmt.Errorf("%w: user id must be non-empty and must not contain ':'", ErrInvalidArgument)

	ErrUnsupportedMedia = fmt.Errorf("%w: unsupported media type", ErrInvalidArgument)
	ErrFileTooLarge     = fmt.Errorf("%w: file is too large", ErrInvalidArgument)
	ErrUserExists       = fmt.Errorf("user already exists")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrInternal         = fmt.Errorf("internal error")

	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSendBufferFull   = fmt.Errorf("connection send buffer exceeded")
)

// Is and As mirror the standard library so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
