package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("domain: not found")
	ErrUnauthorized = errors.New("domain: unauthorized")
)
