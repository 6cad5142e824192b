package fetch

import "fmt"

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	URL     string
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("transport error for %s: %s", e.URL, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ServiceError reports a server that kept answering with a non-200 status.
type ServiceError struct {
	URL        string
	StatusCode int
	Attempts   int
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("remote service error for %s: HTTP status %d after %d attempts", e.URL, e.StatusCode, e.Attempts)
}
