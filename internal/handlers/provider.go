// internal/handlers/provider.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// ProviderHandler serves the provider and patient rosters.
type ProviderHandler struct {
	providerService *services.ProviderService
	patientService  *services.PatientService
}

func NewProviderHandler(providerService *services.ProviderService, patientService *services.PatientService) *ProviderHandler {
	return &ProviderHandler{
		providerService: providerService,
		patientService:  patientService,
	}
}

// GET /providers
func (h *ProviderHandler) ListProviders(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.ProviderFilter{Page: storePage(params)}
	if params.Status != "" {
		status := models.ProviderStatus(params.Status)
		filter.Status = &status
	}
	if providerType := c.Query("type"); providerType != "" {
		t := models.ApplicationType(providerType)
		filter.Type = &t
	}

	providers, total, err := h.providerService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(providers, total, params))
}

// GET /providers/:id
func (h *ProviderHandler) GetProvider(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	provider, err := h.providerService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"provider": provider,
	})
}

// POST /providers/:id/suspend
func (h *ProviderHandler) Suspend(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req reasonBody
	if !bindOptionalJSON(c, &req) {
		return
	}

	provider, paused, err := h.providerService.Suspend(c.Request.Context(), utils.GetActorID(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"provider":             provider,
		"paused_subscriptions": paused,
	})
}

// POST /providers/:id/reinstate
func (h *ProviderHandler) Reinstate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	provider, err := h.providerService.Reinstate(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"provider": provider,
	})
}

// GET /patients
func (h *ProviderHandler) ListPatients(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.PatientFilter{
		Page:   storePage(params),
		Active: queryBool(c, "active"),
	}

	patients, total, err := h.patientService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(patients, total, params))
}

// GET /patients/:id
func (h *ProviderHandler) GetPatient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	patient, err := h.patientService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"patient": patient,
	})
}

// POST /patients/:id/deactivate
func (h *ProviderHandler) DeactivatePatient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	patient, err := h.patientService.Deactivate(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"patient": patient,
	})
}
