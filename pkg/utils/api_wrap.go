package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondCreated(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  "success",
		Code:    http.StatusCreated,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondAccepted(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusAccepted, APIResponse{
		Status:  "success",
		Code:    http.StatusAccepted,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError translates service-layer sentinels to HTTP responses.
// Conflict-class errors are expected under concurrent access and logged at
// info level only.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBelowMinimum),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrInsufficientBalance):
		RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidSignature):
		zap.L().Warn("webhook signature rejected")
		RespondError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrPaymentNotEligible):
		RespondError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrWithdrawalNotFound),
		errors.Is(err, ErrTierNotFound),
		errors.Is(err, ErrStyleNotFound),
		errors.Is(err, ErrAvatarNotFound):
		RespondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrWithdrawalNotPending),
		errors.Is(err, ErrBalanceConflict):
		zap.L().Info("conflicting operation rejected", zap.Error(err))
		RespondError(c, http.StatusConflict, err.Error())
	default:
		zap.L().Error("unhandled service error", zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
