package pose

import "errors"

// Precondition errors are returned before any numeric work is done.
var (
	ErrLengthMismatch = errors.New("correspondence sets have different lengths")
	ErrTooFewPoints   = errors.New("not enough correspondences")
	ErrInvalidParams  = errors.New("invalid parameters")
	ErrDimension      = errors.New("dimension mismatch")
)

// ErrDegenerate reports a numerically infeasible configuration, such as
// collinear points or a rank-deficient linear system. It is an expected
// outcome for bad geometry and callers are meant to check for it with
// errors.Is.
var ErrDegenerate = errors.New("degenerate configuration")
