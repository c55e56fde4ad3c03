// internal/handlers/verification.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/utils"
)

// VerificationHandler lets patients and families confirm that a caregiver
// is a vetted provider without exposing contact details.
type VerificationHandler struct {
	providerService *services.ProviderService
}

func NewVerificationHandler(providerService *services.ProviderService) *VerificationHandler {
	return &VerificationHandler{
		providerService: providerService,
	}
}

type providerCredential struct {
	ProviderID  uuid.UUID              `json:"provider_id"`
	Name        string                 `json:"name"`
	Type        models.ApplicationType `json:"type"`
	Status      models.ProviderStatus  `json:"status"`
	VettedSince time.Time              `json:"vetted_since"`
}

// GET /verify/providers/:id
func (h *VerificationHandler) VerifyProvider(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	provider, err := h.providerService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	// First name and last initial only.
	name := provider.FirstName
	if last := []rune(provider.LastName); len(last) > 0 {
		name += " " + string(last[0]) + "."
	}

	utils.SuccessResponse(c, gin.H{
		"verified": provider.Status == models.ProviderStatusActive,
		"credential": providerCredential{
			ProviderID:  provider.ID,
			Name:        name,
			Type:        provider.Type,
			Status:      provider.Status,
			VettedSince: provider.CreatedAt,
		},
	})
}
