// internal/handlers/subscription.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SubscriptionHandler struct {
	subscriptionService *services.SubscriptionService
	exportService       *services.ExportService
}

func NewSubscriptionHandler(subscriptionService *services.SubscriptionService, exportService *services.ExportService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		exportService:       exportService,
	}
}

// POST /subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PatientID == uuid.Nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "patient_id"), nil)
		return
	}

	subscription, err := h.subscriptionService.CreateSubscription(c.Request.Context(), utils.GetActorID(c), req.PatientID, req.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"subscription": subscription,
	})
}

// subscriptionFilter reads ?status=active,paused&patient_id=&provider_id=.
func subscriptionFilter(c *gin.Context, params utils.PaginationParams) (store.SubscriptionFilter, bool) {
	filter := store.SubscriptionFilter{Page: storePage(params)}

	if params.Status != "" {
		for _, status := range strings.Split(params.Status, ",") {
			if status = strings.TrimSpace(status); status != "" {
				filter.Statuses = append(filter.Statuses, models.SubscriptionStatus(status))
			}
		}
	}

	var ok bool
	if filter.PatientID, ok = queryID(c, "patient_id"); !ok {
		return filter, false
	}
	if filter.ProviderID, ok = queryID(c, "provider_id"); !ok {
		return filter, false
	}
	return filter, true
}

// GET /subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter, ok := subscriptionFilter(c, params)
	if !ok {
		return
	}

	subscriptions, total, err := h.subscriptionService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(subscriptions, total, params))
}

// GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	subscription, err := h.subscriptionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"subscription": subscription,
	})
}

// POST /subscriptions/:id/visits
func (h *SubscriptionHandler) RecordVisit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.RecordVisitRequest
	if !bindJSON(c, &req) {
		return
	}

	subscription, err := h.subscriptionService.RecordVisit(c.Request.Context(), utils.GetActorID(c), id, req.VisitType)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"subscription": subscription,
	})
}

// POST /subscriptions/:id/pause
func (h *SubscriptionHandler) Pause(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req reasonBody
	if !bindOptionalJSON(c, &req) {
		return
	}

	subscription, err := h.subscriptionService.Pause(c.Request.Context(), utils.GetActorID(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"subscription": subscription,
	})
}

// POST /subscriptions/:id/resume
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	subscription, err := h.subscriptionService.Resume(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"subscription": subscription,
	})
}

// POST /subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	subscription, err := h.subscriptionService.Cancel(c.Request.Context(), utils.GetActorID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"subscription": subscription,
	})
}

// PUT /subscriptions/:id/provider
func (h *SubscriptionHandler) AssignProvider(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.AssignProviderRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProviderID == uuid.Nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "provider_id"), nil)
		return
	}

	subscription, err := h.subscriptionService.AssignProvider(c.Request.Context(), utils.GetActorID(c), id, req.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"subscription": subscription,
	})
}

// GET /subscriptions/export
func (h *SubscriptionHandler) Export(c *gin.Context) {
	filter, ok := subscriptionFilter(c, utils.PaginationParams{Status: c.Query("status")})
	if !ok {
		return
	}
	filter.Page = store.Page{}

	content, err := h.exportService.ExportSubscriptions(c.Request.Context(), utils.GetActorID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("subscriptions-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, content)
}
