package store

import "errors"

// ErrNotFound is returned when a row does not exist or is owned by another user.
var ErrNotFound = errors.New("not found")
