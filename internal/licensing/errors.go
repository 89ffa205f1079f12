package licensing

import "fmt"

// ConfigurationError reports missing or invalid local configuration: an empty
// location, an unresolvable project number, a blank display name. It is never
// caused by the remote service and never worth retrying.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ValidationError reports malformed request parameters supplied by the
// caller, surfaced verbatim so the dialogue layer can relay them.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// RemoteServiceError reports a non-success response from the Discovery Engine
// service. Message carries the remote-provided text unmodified; StatusCode is
// the HTTP status when the failure came from the REST path, zero otherwise.
type RemoteServiceError struct {
	StatusCode int
	Message    string
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote service error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "remote service error: " + e.Message
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
