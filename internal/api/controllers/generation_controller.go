package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lumora/internal/models/db_models"
	"lumora/internal/models/request_models"
	"lumora/internal/services"
	"lumora/pkg/utils"
)

type GenerationController struct {
	generationService services.GenerationService
}

func NewGenerationController(generationService services.GenerationService) *GenerationController {
	return &GenerationController{
		generationService: generationService,
	}
}

// StartGeneration godoc
// @Summary Start photo generation for a paid order
// @Tags Generations
// @Accept json
// @Produce json
// @Param request body request_models.StartGenerationRequest true "Start Generation Request"
// @Success 202 {object} utils.APIResponse
// @Security BearerAuth
// @Router /generations [post]
func (g *GenerationController) StartGeneration(c *gin.Context) {
	var request request_models.StartGenerationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return
	}

	paymentID, _ := uuid.Parse(request.PaymentID)
	avatarID, _ := uuid.Parse(request.AvatarID)
	styleID, _ := uuid.Parse(request.StyleID)

	job, err := g.generationService.StartGeneration(c.Request.Context(), userID, paymentID, avatarID, styleID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if job.AlreadyExisting {
		utils.RespondSuccess(c, job, "Generation already in progress")
		return
	}
	utils.RespondAccepted(c, job, "Generation job accepted")
}

// GetJobStatus godoc
// @Summary Get generation job progress
// @Tags Generations
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /generations/{id} [get]
func (g *GenerationController) GetJobStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid job id")
		return
	}

	status, err := g.generationService.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, status, "")
}

// HandleProviderCallback receives task results pushed by the image provider.
func (g *GenerationController) HandleProviderCallback(c *gin.Context) {
	var request request_models.GenerationCallbackRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	err := g.generationService.HandleProviderCallback(c.Request.Context(),
		request.TaskID, request.State, request.ResultURLs, request.Error)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, "Callback processed")
}

// HandleJobFailure is the dead-letter endpoint: the queue infrastructure
// calls it after exhausting delivery retries for a job.
func (g *GenerationController) HandleJobFailure(c *gin.Context) {
	var request request_models.JobFailureCallbackRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	jobID, _ := uuid.Parse(request.JobID)
	if err := g.generationService.HandleJobFailure(c.Request.Context(), jobID, request.Error); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, gin.H{"status": string(db_models.JobStatusFailed)}, "Job failure processed")
}
