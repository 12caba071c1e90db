package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeliverable aborts a run when round 2 finds nothing to select.
	ErrNoDeliverable = errors.New("no selectable rows in the downloaded-files listing")
	// ErrListingMissing means the round 2 listing surface never rendered.
	ErrListingMissing = errors.New("downloaded-files listing not found")
	ErrUnknownMeasure = errors.New("unknown measure type")
	ErrWaitTimeout    = errors.New("wait condition timed out")
)

const faultSnapshotLen = 1000

// HostFaultError is raised when the portal answers with its application
// error page.
type HostFaultError struct {
	URL      string
	Marker   string
	Snapshot string
}

func (e *HostFaultError) Error() string {
	return fmt.Sprintf("portal error page at %s (%q)", e.URL, e.Marker)
}

func newHostFault(url, marker, content string) *HostFaultError {
	snap := content
	if r := []rune(snap); len(r) > faultSnapshotLen {
		snap = string(r[:faultSnapshotLen])
	}
	return &HostFaultError{URL: url, Marker: marker, Snapshot: snap}
}

// StepError records the workflow state a hard failure happened in.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// errorKind buckets an error for metric labels.
func errorKind(err error) string {
	var fault *HostFaultError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &fault):
		return "host_fault"
	case errors.Is(err, ErrNoDeliverable), errors.Is(err, ErrListingMissing):
		return "structural"
	case errors.Is(err, ErrUnknownMeasure):
		return "config"
	default:
		return "other"
	}
}
