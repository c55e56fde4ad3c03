// internal/services/authorization_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

// Action names an inbound engine operation for policy checks and audit.
type Action string

const (
	ActionSubmitApplication  Action = "application.submit"
	ActionClaimApplication   Action = "application.claim"
	ActionRequestInfo        Action = "application.request_info"
	ActionApproveApplication Action = "application.approve"
	ActionRejectApplication  Action = "application.reject"

	ActionSubmitDocument Action = "document.submit"
	ActionReviewDocument Action = "document.review"

	ActionSubmitSurvey  Action = "survey.submit"
	ActionApproveSurvey Action = "survey.approve"
	ActionRejectSurvey  Action = "survey.reject"

	ActionCreateSubscription Action = "subscription.create"
	ActionRecordVisit        Action = "subscription.record_visit"
	ActionPauseSubscription  Action = "subscription.pause"
	ActionResumeSubscription Action = "subscription.resume"
	ActionCancelSubscription Action = "subscription.cancel"
	ActionAssignProvider     Action = "subscription.assign_provider"
	ActionRolloverPeriod     Action = "subscription.rollover"

	ActionSuspendProvider   Action = "provider.suspend"
	ActionReinstateProvider Action = "provider.reinstate"
	ActionDeactivatePatient Action = "patient.deactivate"

	ActionManageUsers Action = "user.manage"
	ActionRunJobs     Action = "jobs.run"
	ActionExport      Action = "export.run"
)

// Applicants act without a console account.
var selfServiceActions = map[Action]bool{
	ActionSubmitApplication: true,
	ActionSubmitDocument:    true,
	ActionSubmitSurvey:      true,
}

var superAdminActions = map[Action]bool{
	ActionCancelSubscription: true,
	ActionSuspendProvider:    true,
	ActionReinstateProvider:  true,
	ActionManageUsers:        true,
	ActionRunJobs:            true,
}

// AuthorizationService is the role policy wrapped around every inbound
// operation. A uuid.Nil actor stands for an unauthenticated applicant.
type AuthorizationService struct {
	store store.Store
}

func NewAuthorizationService(s store.Store) *AuthorizationService {
	return &AuthorizationService{store: s}
}

func (s *AuthorizationService) Authorize(ctx context.Context, actorID uuid.UUID, action Action) error {
	if actorID == uuid.Nil {
		if selfServiceActions[action] {
			return nil
		}
		return &ForbiddenError{Action: action, Reason: "authentication required"}
	}

	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ForbiddenError{ActorID: actorID, Action: action, Reason: "unknown user"}
		}
		return fmt.Errorf("failed to load actor: %w", err)
	}

	if !user.Active {
		return &ForbiddenError{ActorID: actorID, Action: action, Reason: "user is deactivated"}
	}

	if superAdminActions[action] && user.Role != models.UserRoleSuperAdmin {
		return &ForbiddenError{ActorID: actorID, Action: action, Reason: "super_admin role required"}
	}

	return nil
}

// actorRef returns nil for anonymous actors so audit columns stay empty.
func actorRef(actorID uuid.UUID) *uuid.UUID {
	if actorID == uuid.Nil {
		return nil
	}
	id := actorID
	return &id
}
