package catalogapi

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for catalog requests.
var (
	ErrInvalidURL      = errors.New("invalid catalog URL")
	ErrInvalidResponse = errors.New("invalid response")
	ErrEmptyBody       = errors.New("empty response body")
)

// HTTPError is returned for a response status outside 200-299.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// DecodingError is returned when the response body does not match the
// expected shape.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// InvalidResponseError wraps a transport failure that produced no well-formed
// HTTP response. It matches ErrInvalidResponse.
type InvalidResponseError struct {
	Err error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response: %v", e.Err)
}

func (e *InvalidResponseError) Is(target error) bool { return target == ErrInvalidResponse }

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}
