package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lumora/internal/models/db_models"
	"lumora/internal/models/request_models"
	"lumora/internal/models/response_models"
	"lumora/internal/services"
	"lumora/pkg/utils"
)

type WithdrawalController struct {
	withdrawalService services.WithdrawalService
}

func NewWithdrawalController(withdrawalService services.WithdrawalService) *WithdrawalController {
	return &WithdrawalController{
		withdrawalService: withdrawalService,
	}
}

// CreateWithdrawal godoc
// @Summary Request a withdrawal of referral earnings
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param request body request_models.CreateWithdrawalRequest true "Create Withdrawal Request"
// @Success 201 {object} utils.APIResponse
// @Security BearerAuth
// @Router /withdrawals [post]
func (w *WithdrawalController) CreateWithdrawal(c *gin.Context) {
	var request request_models.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return
	}

	withdrawal, err := w.withdrawalService.Create(c.Request.Context(), userID, request)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondCreated(c, toWithdrawalResponse(withdrawal), "Withdrawal requested")
}

// ListMyWithdrawals godoc
// @Summary List the caller's withdrawals
// @Tags Withdrawals
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /withdrawals [get]
func (w *WithdrawalController) ListMyWithdrawals(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return
	}

	withdrawals, err := w.withdrawalService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	responses := make([]*response_models.WithdrawalResponse, len(withdrawals))
	for i := range withdrawals {
		responses[i] = toWithdrawalResponse(&withdrawals[i])
	}
	utils.RespondSuccess(c, responses, "")
}

// AdminAction godoc
// @Summary Approve or reject a pending withdrawal
// @Tags Withdrawals
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param request body request_models.AdminWithdrawalActionRequest true "Admin Action"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/withdrawals/{id} [post]
func (w *WithdrawalController) AdminAction(c *gin.Context) {
	withdrawalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid withdrawal id")
		return
	}

	var request request_models.AdminWithdrawalActionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var withdrawal *db_models.Withdrawal
	switch request.Action {
	case "approve":
		withdrawal, err = w.withdrawalService.Approve(c.Request.Context(), withdrawalID)
	case "reject":
		withdrawal, err = w.withdrawalService.Reject(c.Request.Context(), withdrawalID, request.Reason)
	}
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toWithdrawalResponse(withdrawal), "Withdrawal updated")
}

// HandlePayoutWebhook receives payout settlement events. Processing errors
// are acknowledged with 200 so the provider does not hammer us with retries;
// an unsettled withdrawal stays active and a later delivery still lands.
// Only a bad signature is rejected.
func (w *WithdrawalController) HandlePayoutWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := c.GetHeader("X-Signature")
	if err := w.withdrawalService.HandlePayoutWebhook(c.Request.Context(), body, signature); err != nil {
		if errors.Is(err, utils.ErrInvalidSignature) {
			utils.HandleServiceError(c, err)
			return
		}
		zap.L().Error("payout webhook processing failed", zap.Error(err))
		utils.RespondSuccess(c, nil, "Webhook received")
		return
	}

	utils.RespondSuccess(c, nil, "Webhook processed")
}

func toWithdrawalResponse(w *db_models.Withdrawal) *response_models.WithdrawalResponse {
	return &response_models.WithdrawalResponse{
		WithdrawalID: w.ID.String(),
		AmountMinor:  w.AmountMinor,
		FeeMinor:     w.FeeMinor,
		PayoutMinor:  w.PayoutMinor,
		Status:       string(w.Status),
	}
}
