package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNilFile is returned by the multipart operations when no file reader
// is supplied.
var ErrNilFile = errors.New("file reader must not be nil")

// APIError is returned for any non-2xx response. Body is the raw response
// body; the client does not interpret it.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.URL, e.StatusCode, string(e.Body))
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}
