package query

import "github.com/pkg/errors"

// ErrShapeMismatch is returned by EcsData.WriteBack when a Write term's
// column no longer has the same length as the query's entity list —
// the guest replaced the slice instead of mutating entries in place.
var ErrShapeMismatch = errors.New("query: write column length does not match query shape")
