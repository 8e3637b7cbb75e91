package azure

import "fmt"

// The provider error taxonomy. The scaler matches these through private
// single-method interfaces, so it never imports this package.

// ThrottledError signals the control API rejected the call for rate limiting.
// Retried with backoff.
type ThrottledError struct {
	Status int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("provider throttled (status %d)", e.Status)
}

func (e *ThrottledError) IsThrottled() {}

// AuthFailureError signals rejected credentials. Fatal for scaling until the
// process is restarted with corrected credentials.
type AuthFailureError struct {
	Status int
}

func (e *AuthFailureError) Error() string {
	return fmt.Sprintf("provider authentication failed (status %d)", e.Status)
}

func (e *AuthFailureError) IsAuthFailure() {}

// NotFoundError signals the container service or resource group does not
// exist. Fatal for scaling until configuration is corrected.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider resource not found: %s", e.Resource)
}

func (e *NotFoundError) IsNotFound() {}

// TransientError signals a failure worth retrying: timeouts, connection
// resets, server errors.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient provider error: %v", e.Err)
	}

	return fmt.Sprintf("transient provider error (status %d)", e.Status)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) IsTransient() {}
