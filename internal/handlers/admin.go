// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// AdminHandler serves the operator console: dashboard, audit trail,
// communication log and the maintenance jobs the CLI also runs.
type AdminHandler struct {
	adminService         *services.AdminService
	authz                *services.AuthorizationService
	communicationService *services.CommunicationService
	subscriptionService  *services.SubscriptionService
	applicationService   *services.ApplicationService
	clock                services.Clock
}

func NewAdminHandler(container *services.Container, clock services.Clock) *AdminHandler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &AdminHandler{
		adminService:         container.Admin,
		authz:                container.Authz,
		communicationService: container.Communications,
		subscriptionService:  container.Subscriptions,
		applicationService:   container.Applications,
		clock:                clock,
	}
}

// GET /admin/dashboard
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.AuditLogFilter{Page: storePage(params)}
	var ok bool
	if filter.ActorID, ok = queryID(c, "actor_id"); !ok {
		return
	}
	if filter.ResourceID, ok = queryID(c, "resource_id"); !ok {
		return
	}

	logs, total, err := h.adminService.GetAuditLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

// GET /communications
func (h *AdminHandler) ListCommunications(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.CommunicationFilter{Page: storePage(params)}
	if params.Status != "" {
		status := models.CommunicationStatus(params.Status)
		filter.Status = &status
	}
	if kind := c.Query("subject_kind"); kind != "" {
		k := models.SubjectKind(kind)
		filter.SubjectKind = &k
	}
	var ok bool
	if filter.SubjectID, ok = queryID(c, "subject_id"); !ok {
		return
	}

	communications, total, err := h.communicationService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(communications, total, params))
}

// GET /communications/:id
func (h *AdminHandler) GetCommunication(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	communication, err := h.communicationService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"communication": communication,
	})
}

// runJob gates a maintenance job on ActionRunJobs and reports its count.
func (h *AdminHandler) runJob(c *gin.Context, job string, run func() (int, error)) {
	lang := utils.GetLangFromContext(c)

	if err := h.authz.Authorize(c.Request.Context(), utils.GetActorID(c), services.ActionRunJobs); err != nil {
		respondError(c, err)
		return
	}

	processed, err := run()
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyJobCompleted),
		"job":       job,
		"processed": processed,
	})
}

// POST /admin/jobs/rollover
func (h *AdminHandler) RunRollover(c *gin.Context) {
	h.runJob(c, "rollover", func() (int, error) {
		return h.subscriptionService.RolloverDue(c.Request.Context(), h.clock())
	})
}

// POST /admin/jobs/retry-communications
func (h *AdminHandler) RunRetryCommunications(c *gin.Context) {
	h.runJob(c, "retry-communications", func() (int, error) {
		return h.communicationService.RetryFailed(c.Request.Context())
	})
}

// POST /admin/jobs/reconcile-approvals
func (h *AdminHandler) RunReconcileApprovals(c *gin.Context) {
	h.runJob(c, "reconcile-approvals", func() (int, error) {
		return h.applicationService.ReconcileApprovals(c.Request.Context())
	})
}
