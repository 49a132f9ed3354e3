package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated  = "unauthenticated"
	ErrCodeValidation       = "validation_error"
	ErrCodeRecipientOffline = "recipient_offline"
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodeMessageNotFound  = "message_not_found"
	ErrCodeForbidden        = "forbidden"
	ErrCodeInvalidMessage   = "invalid_message"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
)

// CoreError wraps a code and human-readable message. Context optionally
// names the entity the error relates to (room id, recipient id).
type CoreError struct {
	Code    string
	Message string
	Context string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func coreErrorCtx(code, msg, context string) *CoreError {
	return &CoreError{Code: code, Message: msg, Context: context}
}
