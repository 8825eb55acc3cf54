package watsonx

import "fmt"

// ConfigurationError reports a missing required input, detected before any
// network call is attempted.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("watsonx: missing %s", e.Missing)
}

// AuthExchangeError reports that the IAM endpoint rejected the credential or
// was unreachable.
type AuthExchangeError struct {
	Status int
	Body   string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("watsonx: token exchange failed: status %d: %s", e.Status, e.Body)
}

// UpstreamError reports a non-success status from the generation endpoint.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("watsonx: generation request failed: status %d: %s", e.Status, e.Body)
}

// TransportError reports a failure sending the request or reading the
// response body mid-stream, including cancellation.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("watsonx: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
