// internal/handlers/application.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

type ApplicationHandler struct {
	applicationService *services.ApplicationService
	documentService    *services.DocumentService
}

func NewApplicationHandler(applicationService *services.ApplicationService, documentService *services.DocumentService) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		documentService:    documentService,
	}
}

// POST /applications
func (h *ApplicationHandler) Submit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.SubmitApplicationRequest
	if !bindJSON(c, &req) {
		return
	}

	application, err := h.applicationService.SubmitApplication(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":            i18n.T(lang, i18n.KeyApplicationSubmitted),
		"application":        application,
		"required_documents": h.documentService.RequiredKinds(application.Type),
	})
}

// GET /applications
func (h *ApplicationHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.ApplicationFilter{
		Page:   storePage(params),
		Search: params.Search,
	}
	if params.Status != "" {
		status := models.ApplicationStatus(params.Status)
		filter.Status = &status
	}
	if appType := c.Query("type"); appType != "" {
		t := models.ApplicationType(appType)
		filter.Type = &t
	}

	applications, total, err := h.applicationService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(applications, total, params))
}

// GET /applications/:id
func (h *ApplicationHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	application, err := h.applicationService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": application,
	})
}

// GET /applications/:id/readiness
func (h *ApplicationHandler) Readiness(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	readiness, err := h.documentService.Readiness(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"readiness": readiness,
	})
}

// POST /applications/:id/claim
func (h *ApplicationHandler) Claim(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	application, err := h.applicationService.Claim(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": application,
	})
}

// POST /applications/:id/request-info
func (h *ApplicationHandler) RequestInfo(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	application, err := h.applicationService.RequestInfo(c.Request.Context(), utils.GetActorID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": application,
	})
}

// POST /applications/:id/approve
func (h *ApplicationHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	application, provider, err := h.applicationService.Approve(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": application,
		"provider":    provider,
	})
}

// POST /applications/:id/reject
func (h *ApplicationHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	application, err := h.applicationService.Reject(c.Request.Context(), utils.GetActorID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": application,
	})
}
