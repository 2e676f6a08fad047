package webhookservice

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes returned in the "code" field of error bodies.
const (
	TextCodeMethodNotAllowed = "method_not_allowed"
	TextCodeUnauthorized     = "unauthorized"
	TextCodeUnknownProvider  = "unknown_provider"
	TextCodePayloadTooLarge  = "payload_too_large"
	TextCodeInternal         = "internal_error"
	TextCodeNotFound         = "not_found"
)

// genericFailure is the only detail a caller ever sees for a 500.
const genericFailure = "The webhook could not be processed. It is safe to retry the delivery."

func methodNotAllowed() *goerrors.Error {
	return goerrors.New("Method not allowed", goerrors.CategoryOperation).
		WithCode(http.StatusMethodNotAllowed).
		WithTextCode(TextCodeMethodNotAllowed)
}

func unauthorized() *goerrors.Error {
	return goerrors.New("Unauthorized", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeUnauthorized)
}

func unknownProvider() *goerrors.Error {
	return goerrors.New("Unknown provider", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeUnknownProvider)
}

func notFound() *goerrors.Error {
	return goerrors.New("Not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeNotFound)
}

func payloadTooLarge() *goerrors.Error {
	return goerrors.New("Payload too large", goerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode(TextCodePayloadTooLarge)
}

// internalError hides cause from the caller; it is kept for the log only.
func internalError(cause error) *goerrors.Error {
	if cause == nil {
		return goerrors.New("Internal server error", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(TextCodeInternal)
	}
	return goerrors.Wrap(cause, goerrors.CategoryInternal, "Internal server error").
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInternal)
}
