package service

import "fmt"

// RemoteAPIError is any non-2xx answer from Trello or Kommo. Ingestors
// surface it as 500 so the remote webhook sender redelivers.
type RemoteAPIError struct {
	API    string
	Status int
	Body   string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.API, e.Status, e.Body)
}

// AuthError means the credential was rejected even after a refresh
// attempt. Retrying will not help; an operator has to re-authorize.
type AuthError struct {
	API string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authorization failed: %v", e.API, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
