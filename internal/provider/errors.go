package provider

import "fmt"

// CredentialError means the stored OAuth credentials cannot be used or
// refreshed. It is never auto-retried: the user must reconnect the mailbox.
type CredentialError struct {
	ConnectionID string
	Reason       string
	Err          error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mailbox credentials invalid (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mailbox credentials invalid (%s)", e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// UserMessage is the short actionable message surfaced to the user.
func (e *CredentialError) UserMessage() string {
	return "reconnect your mailbox"
}

// FetchError is a transient provider failure during a list, content or delta
// call. List/delta failures abort the run without advancing any cursor;
// per-item content failures degrade to fallback synthesis instead.
type FetchError struct {
	Provider   string
	Operation  string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed with status %d", e.Provider, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
