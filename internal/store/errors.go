package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRole is returned for a role id outside 1..4.
var ErrInvalidRole = errors.New("invalid role")

// ErrInvalidTable is returned for a table name that is not a role table.
var ErrInvalidTable = errors.New("invalid table")

// ErrSameRole is returned when a migration targets the subject's current role.
var ErrSameRole = errors.New("account already has this role")
