package notifications

import "errors"

// Pipeline errors.
var (
	ErrUnsupportedTemplate = errors.New("unsupported template")
	ErrInvalidPayload      = errors.New("invalid template payload")
	ErrRecipientNotFound   = errors.New("recipient email not found")
)

// Repository errors.
var (
	ErrEntryNotFound = errors.New("queue entry not found")
)
