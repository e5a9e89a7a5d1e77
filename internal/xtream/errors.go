package xtream

import (
	"errors"
	"fmt"
)

// NetworkError wraps a transport-level failure (timeout, DNS, connection
// refused, unexpected HTTP status) from any backend call. It is the only
// error kind the client produces for network operations; an authentication
// rejection is not an error but a value (see AccountInfo.Authenticated).
//
// The client never retries internally. Retry policy belongs to the caller.
type NetworkError struct {
	Op  string // the backend action, e.g. "get_live_streams"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("xtream %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is (or wraps) a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
