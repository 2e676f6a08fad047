package orders

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes returned to integrators.
const (
	TextCodeInvalidJSON   = "invalid_json"
	TextCodeMissingFields = "missing_fields"
)

var errNotObject = errors.New("payload must be a JSON object")

// ValidationError is a client-caused rejection of a webhook payload.
type ValidationError struct {
	TextCode string
	Message  string
	Missing  []string
	Err      error
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return e.Message + ": " + strings.Join(e.Missing, ", ")
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ToServiceError maps the rejection onto the shared error envelope.
func (e *ValidationError) ToServiceError() *goerrors.Error {
	svcErr := goerrors.New(e.Message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(e.TextCode)
	if len(e.Missing) > 0 {
		svcErr = svcErr.WithMetadata(map[string]any{"required": e.Missing})
	}
	return svcErr
}

func invalidJSON(err error) error {
	return &ValidationError{
		TextCode: TextCodeInvalidJSON,
		Message:  "Invalid JSON payload",
		Err:      err,
	}
}

func missingFields(missing []string) error {
	return &ValidationError{
		TextCode: TextCodeMissingFields,
		Message:  "Missing required fields",
		Missing:  missing,
	}
}

// MissingFields returns the missing field names carried by err, if any.
func MissingFields(err error) []string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Missing
	}
	return nil
}
