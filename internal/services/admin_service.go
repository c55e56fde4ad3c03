// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

type AdminService struct {
	store store.Store
}

type AdminDashboardStats struct {
	ApplicationsSubmitted     int64 `json:"applications_submitted"`
	ApplicationsUnderReview   int64 `json:"applications_under_review"`
	ApplicationsInfoRequested int64 `json:"applications_info_requested"`
	ActiveProviders           int64 `json:"active_providers"`
	SuspendedProviders        int64 `json:"suspended_providers"`
	PendingSurveys            int64 `json:"pending_surveys"`
	ActivePatients            int64 `json:"active_patients"`
	ActiveSubscriptions       int64 `json:"active_subscriptions"`
	PausedSubscriptions       int64 `json:"paused_subscriptions"`
	FailedCommunications      int64 `json:"failed_communications"`
}

func NewAdminService(s store.Store) *AdminService {
	return &AdminService{store: s}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	one := store.Page{Limit: 1}

	submitted := models.ApplicationStatusSubmitted
	underReview := models.ApplicationStatusUnderReview
	infoRequested := models.ApplicationStatusInfoRequested
	activeProvider := models.ProviderStatusActive
	suspended := models.ProviderStatusSuspended
	pending := models.SurveyStatusPending
	failed := models.CommunicationStatusFailed
	active := true

	steps := []struct {
		label string
		fn    func() (int64, error)
		dst   *int64
	}{
		{"submitted applications", func() (int64, error) {
			_, n, err := s.store.ListApplications(ctx, store.ApplicationFilter{Page: one, Status: &submitted})
			return n, err
		}, &stats.ApplicationsSubmitted},
		{"applications under review", func() (int64, error) {
			_, n, err := s.store.ListApplications(ctx, store.ApplicationFilter{Page: one, Status: &underReview})
			return n, err
		}, &stats.ApplicationsUnderReview},
		{"info requested applications", func() (int64, error) {
			_, n, err := s.store.ListApplications(ctx, store.ApplicationFilter{Page: one, Status: &infoRequested})
			return n, err
		}, &stats.ApplicationsInfoRequested},
		{"active providers", func() (int64, error) {
			_, n, err := s.store.ListProviders(ctx, store.ProviderFilter{Page: one, Status: &activeProvider})
			return n, err
		}, &stats.ActiveProviders},
		{"suspended providers", func() (int64, error) {
			_, n, err := s.store.ListProviders(ctx, store.ProviderFilter{Page: one, Status: &suspended})
			return n, err
		}, &stats.SuspendedProviders},
		{"pending surveys", func() (int64, error) {
			_, n, err := s.store.ListSurveys(ctx, store.SurveyFilter{Page: one, Status: &pending})
			return n, err
		}, &stats.PendingSurveys},
		{"active patients", func() (int64, error) {
			_, n, err := s.store.ListPatients(ctx, store.PatientFilter{Page: one, Active: &active})
			return n, err
		}, &stats.ActivePatients},
		{"active subscriptions", func() (int64, error) {
			_, n, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{Page: one, Statuses: []models.SubscriptionStatus{models.SubscriptionStatusActive}})
			return n, err
		}, &stats.ActiveSubscriptions},
		{"paused subscriptions", func() (int64, error) {
			_, n, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{Page: one, Statuses: []models.SubscriptionStatus{models.SubscriptionStatusPaused}})
			return n, err
		}, &stats.PausedSubscriptions},
		{"failed communications", func() (int64, error) {
			_, n, err := s.store.ListCommunications(ctx, store.CommunicationFilter{Page: one, Status: &failed})
			return n, err
		}, &stats.FailedCommunications},
	}

	for _, step := range steps {
		n, err := step.fn()
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", step.label, err)
		}
		*step.dst = n
	}

	return stats, nil
}

func (s *AdminService) GetAuditLogs(ctx context.Context, filter store.AuditLogFilter) ([]models.AuditLog, int64, error) {
	logs, total, err := s.store.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

// createAuditLog writes the transition record through the caller's
// transaction so it commits or rolls back with the change itself.
func createAuditLog(ctx context.Context, tx store.Store, actorID uuid.UUID, action Action, resourceType string, resourceID uuid.UUID, oldValues, newValues map[string]interface{}) error {
	entry := &models.AuditLog{
		ActorID:      actorRef(actorID),
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		OldValues:    models.JSONB(oldValues),
		NewValues:    models.JSONB(newValues),
	}
	if err := tx.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func statusChange(from, to interface{}) (map[string]interface{}, map[string]interface{}) {
	return map[string]interface{}{"status": from}, map[string]interface{}{"status": to}
}
