package connpool

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned when a connection cannot be acquired
// within the configured acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ConnectionError wraps a connection-establishment or execution failure
// for a specific pool key after the retry budget is exhausted.
type ConnectionError struct {
	Key PoolKey
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed for %s: %v", e.Key, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
