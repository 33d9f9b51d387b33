package remote

import (
	"errors"
	"fmt"
)

// Error is the typed failure the client surfaces after its retry
// budget is spent. Status is zero for transport-level failures.
type Error struct {
	Op     string
	Status int
	Body   string
	TxnID  int64
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.TxnID != 0:
		return fmt.Sprintf("remote: %s txn %d: HTTP %d: %s", e.Op, e.TxnID, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("remote: %s: HTTP %d: %s", e.Op, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("remote: %s failed", e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// AuthFailed reports whether the failure is an authentication or
// authorization rejection, which is never retried.
func (e *Error) AuthFailed() bool {
	return e.Status == 401 || e.Status == 403
}

// IsRemoteError reports whether err carries a *Error anywhere in its
// chain.
func IsRemoteError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
