package hrest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpay-service/pkg/response"
	"ledgerpay-service/pkg/xerrors"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{xerrors.ErrTicketRequired, http.StatusBadRequest},
		{xerrors.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("deposit: %w", xerrors.ErrValidation), http.StatusBadRequest},
		{xerrors.ErrUnauthorized, http.StatusUnauthorized},
		{xerrors.ErrNotFound, http.StatusNotFound},
		{xerrors.ErrAccountNotFound, http.StatusNotFound},
		{xerrors.ErrTransactionNotFound, http.StatusNotFound},
		{xerrors.ErrConflict, http.StatusConflict},
		{xerrors.ErrWalletExists, http.StatusConflict},
		{xerrors.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{xerrors.ErrAlreadyRefunded, http.StatusUnprocessableEntity},
		{xerrors.ErrLockTimeout, http.StatusServiceUnavailable},
		{errors.New("pq: connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body response.APIResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "error", body.Status)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

	var body response.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Message)
}

func TestWriteErrorLockTimeoutRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, xerrors.ErrLockTimeout)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteErrorNilIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}
