package github

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError is a non-success answer (or transport failure) from the hosting API.
// Status is 0 when no response was received.
type UpstreamError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("github %s failed: %v", e.Op, e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("github %s failed: %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("github %s failed: %d %s", e.Op, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamFetchError reports that a file's content could not be read.
type UpstreamFetchError struct {
	Owner string
	Repo  string
	Path  string
	Err   error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s:%s: %v", e.Owner, e.Repo, e.Path, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// StatusOf returns the hosting API status carried by err, or 0.
func StatusOf(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}
