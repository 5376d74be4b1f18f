package lifecycle

import "errors"

var (
	errShipped      = errors.New("lifecycle: lode is shipped, no runner may attach")
	errAlreadyOwned = errors.New("lifecycle: lode is already owned by another runner")
	errWrongStage   = errors.New("lifecycle: lode is not in the requested stage")
)

// ErrShipped, ErrAlreadyOwned, and ErrWrongStage let callers match on
// the specific precondition failure.
var (
	ErrShipped      = errShipped
	ErrAlreadyOwned = errAlreadyOwned
	ErrWrongStage   = errWrongStage
)
