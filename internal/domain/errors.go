// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition indicates a status change the task lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")
