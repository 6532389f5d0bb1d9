package config

import "errors"

// ErrMissingSecret is returned when JWT_SECRET is unset in production.
var ErrMissingSecret = errors.New("JWT_SECRET is required in production")

const devSecret = "dev-only-secret-change-me-0123456789abcdef"
