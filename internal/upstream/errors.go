package upstream

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse marks a success status whose body is not valid JSON.
var ErrInvalidResponse = errors.New("upstream returned a non-JSON body")

// StatusError is returned when the upstream answers with a non-2xx status.
// Body holds the response text unmodified.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d: %s", e.StatusCode, e.Body)
}
