package httpx

import (
	"errors"
	"net/http"

	"github.com/clipforge/clipforge/internal/data"
	apperrors "github.com/clipforge/clipforge/internal/errors"
)

// statusForCode maps application error codes to HTTP status codes.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeValidation, apperrors.ErrCodeEmptySelection:
		return http.StatusBadRequest
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// translateError converts repository sentinels and raw database errors into
// application errors so every handler renders them with the right status.
func translateError(err error) error {
	switch {
	case errors.Is(err, data.ErrJobNotFound):
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeNotFound,
			Message: "job not found",
			Cause:   err,
		}
	case errors.Is(err, data.ErrDeadLetterNotFound):
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeNotFound,
			Message: "dead letter not found",
			Cause:   err,
		}
	case errors.Is(err, data.ErrJobNotDeletable):
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeConflict,
			Message: data.ErrJobNotDeletable.Error(),
			Cause:   err,
		}
	case errors.Is(err, data.ErrJobReserved):
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeConflict,
			Message: data.ErrJobReserved.Error(),
			Cause:   err,
		}
	}
	return apperrors.MapDBError(err)
}

// WriteAppError renders an application error as a JSON response, mapping its
// code to an HTTP status. Non-application errors become opaque 500s so the
// wire never carries internal details.
func WriteAppError(w http.ResponseWriter, err error) {
	err = translateError(err)
	code := apperrors.GetCode(err)
	status := statusForCode(code)

	body := map[string]string{
		"error":   string(code),
		"message": err.Error(),
	}
	if code == "" || status == http.StatusInternalServerError {
		body["error"] = string(apperrors.ErrCodeInternal)
		body["message"] = "internal error"
	}
	if field := apperrors.GetField(err); field != "" {
		body["field"] = field
	}

	WriteJSON(w, status, body)
}
