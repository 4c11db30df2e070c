package cala

import "fmt"

// AuthError indicates the credential exchange or token refresh failed.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cala auth: %s: %v", e.Message, e.Err)
	}
	return "cala auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError indicates the GraphQL endpoint rejected a request or returned
// errors in the response envelope.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cala api: %s: %v", e.Message, e.Err)
	}
	return "cala api: " + e.Message
}

func (e *APIError) Unwrap() error { return e.Err }
