package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrStoreUnavailable is returned when the order store cannot be read or
	// written.
	ErrStoreUnavailable = errors.New("order store unavailable")
	// ErrEnrichmentUnavailable marks a failed product or payment lookup
	// during listing. It is logged, never returned.
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

	errNoListing = errors.New("order store returned no result")
)

// DependencyUnavailableError is produced by a guard fallback when a call to
// a downstream dependency was skipped by an open breaker or failed.
type DependencyUnavailableError struct {
	Dependency string
	Message    string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is unavailable", e.Dependency)
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }

// RejectionError is a business-rule failure reported by a downstream service,
// e.g. insufficient stock or an unknown order.
type RejectionError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("rejected with status %d", e.Status)
}

// Category groups placement failures by who has to act on them.
type Category string

const (
	CategoryUnavailable Category = "unavailable"
	CategoryClientError Category = "client-error"
	CategoryInternal    Category = "internal"
)

// PlacementError is the single categorized failure returned by PlaceOrder.
// Status carries the downstream status for CategoryClientError only.
type PlacementError struct {
	Category Category
	Message  string
	Status   int
	Err      error
}

func (e *PlacementError) Error() string { return e.Message }

func (e *PlacementError) Unwrap() error { return e.Err }

// classify maps a saga failure to its outcome. A downstream rejection wins
// over the unavailable wrapper a fallback puts around it.
func classify(err error) *PlacementError {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return &PlacementError{
			Category: CategoryClientError,
			Message:  rejection.Error(),
			Status:   rejection.Status,
			Err:      err,
		}
	}

	var unavailable *DependencyUnavailableError
	if errors.As(err, &unavailable) {
		return &PlacementError{
			Category: CategoryUnavailable,
			Message:  "Dependency Service Unavailable: " + unavailable.Error(),
			Err:      err,
		}
	}

	return &PlacementError{
		Category: CategoryInternal,
		Message:  "unexpected error",
		Err:      err,
	}
}
