package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownMethod = errors.New("unknown method")
	ErrQuery         = errors.New("query failed")
	ErrEmbed         = errors.New("embedding failed")
	ErrNoClasses     = errors.New("no class names")
)
