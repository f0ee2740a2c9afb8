package service

import "errors"

// Sentinel kinds for service input errors.
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidScore    = errors.New("invalid score")
)
