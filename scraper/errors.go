// scraper/errors.go
package scraper

import (
	"errors"
	"fmt"

	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/storage"
)

var (
	// ErrIndicatorsNotFound means no indicator CSV was published in the lookback window.
	ErrIndicatorsNotFound = errors.New("no economic indicator file found in lookback window")
	// ErrNoExecutiveOrders means the API returned no usable records.
	ErrNoExecutiveOrders = errors.New("no executive orders with a document number and publication date")
	// ErrNoApprovalData means no president's table produced a row with a valid start date.
	ErrNoApprovalData = errors.New("no approval ratings with a valid start date")
	// ErrNoTable means the page contained no HTML table.
	ErrNoTable = errors.New("no table found in page")
	// ErrPaginationLoop means next_page_url pointed at a page already fetched
	// or the page limit was reached.
	ErrPaginationLoop = errors.New("pagination did not terminate")
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: received status code %d", e.URL, e.Code)
}

// ParseError wraps a failure to decode a fetched document.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("failed to parse %s: %v", e.What, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Classify maps an error to its failure kind.
func Classify(err error) models.FailureKind {
	var statusErr *StatusError
	var parseErr *ParseError
	switch {
	case err == nil:
		return models.FailureNone
	case errors.As(err, &statusErr):
		return models.FailureStatus
	case errors.As(err, &parseErr), errors.Is(err, ErrNoTable), errors.Is(err, ErrPaginationLoop):
		return models.FailureParse
	case errors.Is(err, ErrIndicatorsNotFound):
		return models.FailureStatus
	case errors.Is(err, ErrNoExecutiveOrders), errors.Is(err, ErrNoApprovalData):
		return models.FailureEmpty
	case errors.Is(err, storage.ErrExists), errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrEmptyKey), errors.Is(err, storage.ErrInvalidKey):
		return models.FailureStorage
	default:
		return models.FailureTransport
	}
}
