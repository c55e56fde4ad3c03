// internal/handlers/survey.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

type SurveyHandler struct {
	surveyService *services.SurveyService
}

func NewSurveyHandler(surveyService *services.SurveyService) *SurveyHandler {
	return &SurveyHandler{
		surveyService: surveyService,
	}
}

// POST /surveys
func (h *SurveyHandler) Submit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.SubmitSurveyRequest
	if !bindJSON(c, &req) {
		return
	}

	survey, err := h.surveyService.SubmitSurvey(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeySurveySubmitted),
		"survey":  survey,
	})
}

// GET /surveys
func (h *SurveyHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.SurveyFilter{
		Page:   storePage(params),
		Search: params.Search,
	}
	if params.Status != "" {
		status := models.SurveyStatus(params.Status)
		filter.Status = &status
	}

	surveys, total, err := h.surveyService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(surveys, total, params))
}

// GET /surveys/:id
func (h *SurveyHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	survey, err := h.surveyService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"survey": survey,
	})
}

// POST /surveys/:id/approve
func (h *SurveyHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	survey, patient, err := h.surveyService.Approve(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"survey":  survey,
		"patient": patient,
	})
}

// POST /surveys/:id/reject
func (h *SurveyHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	survey, err := h.surveyService.Reject(c.Request.Context(), utils.GetActorID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"survey": survey,
	})
}
