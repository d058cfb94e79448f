package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/form"
	"visakal-form/internal/service"
	"visakal-form/internal/store"
	"visakal-form/internal/visaapi"
)

// writeError maps service errors to HTTP status and a message in lang.
func writeError(w http.ResponseWriter, logger *zap.Logger, lang domain.Language, err error) {
	var subErr *form.SubmissionError
	if errors.As(err, &subErr) {
		writeJSON(w, http.StatusBadGateway, Fail(subErr.Message.Get(lang)))
		return
	}

	var apiErr *visaapi.APIError
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrApplicationNotFound),
		errors.Is(err, service.ErrPricingNotFound):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case errors.Is(err, service.ErrCountryRequired),
		errors.Is(err, service.ErrPaymentTarget),
		errors.Is(err, service.ErrPricingIDRequired),
		errors.Is(err, form.ErrBeneficiaryIndex),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrNotFileField),
		errors.Is(err, form.ErrCopyFromPrevious),
		errors.Is(err, form.ErrAutoCopyFileField),
		errors.Is(err, form.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidPreference):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, form.ErrUploadsInFlight),
		errors.Is(err, form.ErrSubmitInProgress),
		errors.Is(err, form.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		writeJSON(w, http.StatusUnauthorized, Result[any]{Code: ResultTokenExpired, Type: "error", Message: apiErr.Message})
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden:
		writeJSON(w, http.StatusForbidden, Fail(apiErr.Message))
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		writeJSON(w, http.StatusNotFound, Fail(apiErr.Message))
	case errors.As(err, &apiErr), errors.Is(err, visaapi.ErrUnreachable):
		logger.Warn("Visa API call failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
	default:
		logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
