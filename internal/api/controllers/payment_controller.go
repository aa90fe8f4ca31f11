package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lumora/internal/models/request_models"
	"lumora/internal/services"
	"lumora/pkg/utils"
)

type PaymentController struct {
	paymentService services.PaymentService
}

func NewPaymentController(paymentService services.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
	}
}

// CreateCheckout godoc
// @Summary Create a checkout for a photo pack tier
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.CreateCheckoutRequest true "Create Checkout Request"
// @Success 201 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/checkout [post]
func (p *PaymentController) CreateCheckout(c *gin.Context) {
	var request request_models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return
	}

	checkout, err := p.paymentService.CreateCheckout(c.Request.Context(), userID, request)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondCreated(c, checkout, "Checkout created successfully")
}

// HandleWebhook receives billing-provider notifications. The raw body is
// needed for signature verification, so binding happens inside the service.
func (p *PaymentController) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := c.GetHeader("X-Signature")
	if err := p.paymentService.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, "Webhook processed")
}
