package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lumora/internal/services"
	"lumora/pkg/utils"
)

type ReferralController struct {
	referralService services.ReferralService
}

func NewReferralController(referralService services.ReferralService) *ReferralController {
	return &ReferralController{
		referralService: referralService,
	}
}

// GetMyStats godoc
// @Summary Get the caller's referral code, balance and earnings
// @Tags Referrals
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /referrals/me [get]
func (r *ReferralController) GetMyStats(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return
	}

	stats, err := r.referralService.Stats(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, stats, "")
}
