package model

import "errors"

var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrFolderNotFound  = errors.New("folder not found")
	ErrInvalidFeedURL  = errors.New("feed url must be an absolute http(s) url")
	ErrInvalidInterval = errors.New("auto-update interval must be at least one minute")
)
