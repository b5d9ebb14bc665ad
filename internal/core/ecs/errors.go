package ecs

import (
	"github.com/pkg/errors"
)

// Sentinel errors returned by Store operations. Wrapped with
// github.com/pkg/errors at the call site so a caller can still compare
// with errors.Is while getting a stack trace on first return.
var (
	// ErrSizeMismatch is returned by Add when bytes.Len() differs from
	// the size the component id was first written with in this run.
	ErrSizeMismatch = errors.New("ecs: component size mismatch")

	// ErrEntityNotFound is returned by operations that require an
	// already-created entity.
	ErrEntityNotFound = errors.New("ecs: entity not found")
)
