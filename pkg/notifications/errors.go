package notifications

import "errors"

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUserIDRequired       = errors.New("user id is required")
	ErrTitleRequired        = errors.New("title is required")
	ErrInvalidType          = errors.New("invalid notification type")
	ErrContentMismatch      = errors.New("content does not match notification type")
	ErrInvalidContent       = errors.New("invalid notification content")
	ErrInvalidParams        = errors.New("invalid notification params")
	ErrStorageNil           = errors.New("notification storage is nil")
	ErrFailedToStore        = errors.New("failed to store notification")
)
