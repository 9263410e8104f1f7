package hrest

import (
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"ledgerpay-service/pkg/response"
	"ledgerpay-service/pkg/xerrors"
)

// writeError maps usecase errors onto stable HTTP error kinds. Internal
// causes are logged, never leaked to callers.
func writeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	logger := log.WithFields(log.Fields{
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})

	switch {
	case errors.Is(err, xerrors.ErrTicketRequired),
		errors.Is(err, xerrors.ErrValidation):
		logger.WithField("http_status", http.StatusBadRequest).Warn("request rejected by validation")
		response.Error(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, xerrors.ErrUnauthorized):
		logger.WithField("http_status", http.StatusUnauthorized).Warn("unauthorized request")
		response.Error(w, http.StatusUnauthorized, "unauthorized")

	case errors.Is(err, xerrors.ErrNotFound),
		errors.Is(err, xerrors.ErrAccountNotFound),
		errors.Is(err, xerrors.ErrTransactionNotFound):
		logger.WithField("http_status", http.StatusNotFound).Warn("resource not found")
		response.Error(w, http.StatusNotFound, err.Error())

	case errors.Is(err, xerrors.ErrConflict),
		errors.Is(err, xerrors.ErrWalletExists):
		logger.WithField("http_status", http.StatusConflict).Warn("conflicting request")
		response.Error(w, http.StatusConflict, err.Error())

	case errors.Is(err, xerrors.ErrInsufficientFunds),
		errors.Is(err, xerrors.ErrAlreadyRefunded):
		logger.WithField("http_status", http.StatusUnprocessableEntity).Warn("business rule rejected operation")
		response.Error(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, xerrors.ErrLockTimeout):
		// Transient: the client may retry the same ticket.
		logger.WithField("http_status", http.StatusServiceUnavailable).Warn("lock wait timed out")
		w.Header().Set("Retry-After", "1")
		response.Error(w, http.StatusServiceUnavailable, err.Error())

	default:
		logger.WithField("http_status", http.StatusInternalServerError).Error("internal error")
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
