package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

func serviceErrorStatus(err error) int {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	HandleServiceError(c, err)
	return rec.Code
}

func TestHandleServiceErrorStatusCodes(t *testing.T) {
	// Asking for more than the spendable balance is a client error, same
	// class as asking for less than the minimum.
	require.Equal(t, http.StatusBadRequest, serviceErrorStatus(ErrInsufficientBalance))
	require.Equal(t, http.StatusBadRequest, serviceErrorStatus(ErrBelowMinimum))

	// A balance that moved between request and approval is a conflict.
	require.Equal(t, http.StatusConflict, serviceErrorStatus(ErrBalanceConflict))
	require.Equal(t, http.StatusConflict, serviceErrorStatus(ErrWithdrawalNotPending))

	require.Equal(t, http.StatusUnauthorized, serviceErrorStatus(ErrInvalidSignature))
	require.Equal(t, http.StatusPaymentRequired, serviceErrorStatus(ErrPaymentNotEligible))
	require.Equal(t, http.StatusNotFound, serviceErrorStatus(ErrWithdrawalNotFound))
	require.Equal(t, http.StatusInternalServerError, serviceErrorStatus(errors.New("boom")))
}
