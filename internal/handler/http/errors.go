package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/virtualmercado/shopdrive-sub002/internal/checkout"
	"github.com/virtualmercado/shopdrive-sub002/internal/delivery"
	"github.com/virtualmercado/shopdrive-sub002/internal/identification"
	"github.com/virtualmercado/shopdrive-sub002/internal/payment"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/httputil"
)

func conflict(code string, err error) *apperrors.AppError {
	return &apperrors.AppError{Code: code, Message: err.Error(), Status: http.StatusConflict, Err: apperrors.ErrConflict}
}

func unprocessable(code string, err error) *apperrors.AppError {
	return &apperrors.AppError{Code: code, Message: err.Error(), Status: http.StatusUnprocessableEntity, Err: apperrors.ErrUnprocessable}
}

// toAppError translates checkout errors to their HTTP representation.
// Errors it does not know are returned unchanged.
func toAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var subErr *checkout.SubmissionError
	if errors.As(err, &subErr) {
		return &apperrors.AppError{
			Code:    "ORDER_FAILED",
			Message: subErr.Reason,
			Status:  http.StatusBadGateway,
			Err:     apperrors.ErrServiceUnavail,
		}
	}

	var tokErr *payment.TokenizationError
	if errors.As(err, &tokErr) {
		if tokErr.Kind == payment.KindRejected {
			return apperrors.PaymentFailed(tokErr.Error())
		}
		return apperrors.ServiceUnavailable(tokErr.Error(), tokErr.Err)
	}

	switch {
	case errors.Is(err, checkout.ErrLocked):
		return conflict("SESSION_LOCKED", err)
	case errors.Is(err, checkout.ErrNotReady):
		return conflict("NOT_READY", err)
	case errors.Is(err, checkout.ErrSubmitInFlight):
		return conflict("SUBMIT_IN_PROGRESS", err)
	case errors.Is(err, checkout.ErrNotFailed):
		return conflict("NOT_FAILED", err)

	case errors.Is(err, identification.ErrReadOnly):
		return conflict("IDENTITY_READ_ONLY", err)
	case errors.Is(err, identification.ErrEmailRequired):
		return unprocessable("EMAIL_REQUIRED", err)
	case errors.Is(err, identification.ErrNoAccount):
		return unprocessable("NO_ACCOUNT", err)
	case errors.Is(err, identification.ErrTooManyAttempts):
		return apperrors.TooManyRequests(err.Error())
	case errors.Is(err, provider.ErrInvalidCredentials):
		return apperrors.Unauthorized(err.Error())

	case errors.Is(err, delivery.ErrMethodNotPermitted),
		errors.Is(err, delivery.ErrUnknownService),
		errors.Is(err, delivery.ErrUnknownMethod):
		return unprocessable("DELIVERY_NOT_OFFERED", err)
	case errors.Is(err, delivery.ErrQuotePending):
		return conflict("QUOTE_PENDING", err)
	case errors.Is(err, delivery.ErrQuoteUnavailable):
		return unprocessable("QUOTE_UNAVAILABLE", err)
	case errors.Is(err, delivery.ErrNoPostalCode):
		return unprocessable("POSTAL_CODE_REQUIRED", err)

	case errors.Is(err, payment.ErrMethodNotEnabled):
		return unprocessable("PAYMENT_NOT_OFFERED", err)
	case errors.Is(err, payment.ErrInvalidInstallments):
		return unprocessable("INSTALLMENTS_NOT_OFFERED", err)
	case errors.Is(err, payment.ErrNotCreditCard):
		return conflict("NOT_CREDIT_CARD", err)
	case errors.Is(err, payment.ErrTokenizationInFlight):
		return conflict("TOKENIZATION_IN_PROGRESS", err)
	case errors.Is(err, payment.ErrCardChanged):
		return conflict("CARD_CHANGED", err)
	}
	return err
}

// writeError writes err in the error envelope. Invalid card details are
// reported per field like request validation failures.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var cardErr *payment.InvalidCardError
	if errors.As(err, &cardErr) {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "card details are invalid",
				Fields:  cardErr.Fields,
			},
		})
		return
	}
	httputil.WriteError(w, r, toAppError(err), logger)
}
