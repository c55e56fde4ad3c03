// internal/services/application_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// ApplicationService drives Application -> Provider promotion.
type ApplicationService struct {
	store     store.Store
	authz     *AuthorizationService
	documents *DocumentService
	comms     *CommunicationService
	clock     Clock
}

type SubmitApplicationRequest struct {
	Type      models.ApplicationType `json:"type" validate:"required,oneof=nurse cna"`
	FirstName string                 `json:"first_name" validate:"required,max=100"`
	LastName  string                 `json:"last_name" validate:"required,max=100"`
	Email     string                 `json:"email" validate:"required,email"`
	Phone     string                 `json:"phone,omitempty" validate:"omitempty,phone"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func NewApplicationService(s store.Store, authz *AuthorizationService, documents *DocumentService, comms *CommunicationService, clock Clock) *ApplicationService {
	return &ApplicationService{
		store:     s,
		authz:     authz,
		documents: documents,
		comms:     comms,
		clock:     clock,
	}
}

func (s *ApplicationService) SubmitApplication(ctx context.Context, req *SubmitApplicationRequest) (*models.Application, error) {
	if err := s.authz.Authorize(ctx, uuid.Nil, ActionSubmitApplication); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if len(s.documents.RequiredKinds(req.Type)) == 0 {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("no required documents configured for %s", req.Type)}
	}

	app := &models.Application{
		Type:      req.Type,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		Status:    models.ApplicationStatusSubmitted,
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		return createAuditLog(ctx, tx, uuid.Nil, ActionSubmitApplication, "application", app.ID, nil, map[string]interface{}{
			"status": app.Status,
			"type":   app.Type,
		})
	})
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Claim moves a submitted application under review. Claiming an application
// that is already under review returns it unchanged.
func (s *ApplicationService) Claim(ctx context.Context, actorID, id uuid.UUID) (*models.Application, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionClaimApplication); err != nil {
		return nil, err
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status == models.ApplicationStatusUnderReview {
		return app, nil
	}
	if err := checkApplicationTransition(app, models.ApplicationStatusUnderReview, models.ApplicationStatusSubmitted); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		app.Status = models.ApplicationStatusUnderReview
		app.ClaimedBy = actorRef(actorID)
		if err := tx.UpdateApplication(ctx, app, models.ApplicationStatusSubmitted); err != nil {
			return storeError(err, "application", app.ID)
		}
		oldValues, newValues := statusChange(models.ApplicationStatusSubmitted, models.ApplicationStatusUnderReview)
		return createAuditLog(ctx, tx, actorID, ActionClaimApplication, "application", app.ID, oldValues, newValues)
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			// A concurrent claim landing first is still a successful claim.
			if current, getErr := s.Get(ctx, id); getErr == nil && current.Status == models.ApplicationStatusUnderReview {
				return current, nil
			}
		}
		return nil, err
	}

	return app, nil
}

func (s *ApplicationService) RequestInfo(ctx context.Context, actorID, id uuid.UUID, req *ReasonRequest) (*models.Application, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionRequestInfo); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkApplicationTransition(app, models.ApplicationStatusInfoRequested, models.ApplicationStatusUnderReview); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		app.Status = models.ApplicationStatusInfoRequested
		app.StatusReason = req.Reason
		if err := tx.UpdateApplication(ctx, app, models.ApplicationStatusUnderReview); err != nil {
			return storeError(err, "application", app.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionRequestInfo, "application", app.ID,
			map[string]interface{}{"status": models.ApplicationStatusUnderReview},
			map[string]interface{}{"status": models.ApplicationStatusInfoRequested, "reason": req.Reason},
		)
	})
	if err != nil {
		return nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectApplication, ID: app.ID}, KindInfoRequested, app.Email, map[string]interface{}{
		"Name":   app.FullName(),
		"Reason": req.Reason,
	})

	return app, nil
}

// Approve promotes the application to a Provider. Document readiness is
// re-checked under lock in the same transaction as the status flip.
func (s *ApplicationService) Approve(ctx context.Context, actorID, id uuid.UUID) (*models.Application, *models.Provider, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionApproveApplication); err != nil {
		return nil, nil, err
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkApplicationTransition(app, models.ApplicationStatusApproved, models.ApplicationStatusUnderReview); err != nil {
		return nil, nil, err
	}

	var provider *models.Provider
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		// Application row first, then documents: the same order document
		// writes use.
		if _, err := tx.LockApplication(ctx, app.ID); err != nil {
			return storeError(err, "application", app.ID)
		}
		docs, err := tx.LockDocuments(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("failed to lock documents: %w", err)
		}
		if missing := missingKinds(s.documents.RequiredKinds(app.Type), docs); len(missing) > 0 {
			return &DocumentsIncompleteError{ApplicationID: app.ID, Missing: missing}
		}

		now := s.clock()
		app.Status = models.ApplicationStatusApproved
		app.StatusReason = ""
		app.DecidedBy = actorRef(actorID)
		app.DecidedAt = &now
		if err := tx.UpdateApplication(ctx, app, models.ApplicationStatusUnderReview); err != nil {
			return storeError(err, "application", app.ID)
		}

		provider = providerFromApplication(app)
		if err := tx.CreateProvider(ctx, provider); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return &ConflictError{Resource: "application", ID: app.ID}
			}
			return fmt.Errorf("failed to create provider: %w", err)
		}

		oldValues, newValues := statusChange(models.ApplicationStatusUnderReview, models.ApplicationStatusApproved)
		newValues["provider_id"] = provider.ID
		return createAuditLog(ctx, tx, actorID, ActionApproveApplication, "application", app.ID, oldValues, newValues)
	})
	if err != nil {
		return nil, nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectApplication, ID: app.ID}, KindApproved, app.Email, map[string]interface{}{
		"Name":       app.FullName(),
		"ProviderID": provider.ID.String(),
	})

	return app, provider, nil
}

func (s *ApplicationService) Reject(ctx context.Context, actorID, id uuid.UUID, req *ReasonRequest) (*models.Application, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionRejectApplication); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkApplicationTransition(app, models.ApplicationStatusRejected,
		models.ApplicationStatusUnderReview, models.ApplicationStatusInfoRequested); err != nil {
		return nil, err
	}

	previous := app.Status
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		now := s.clock()
		app.Status = models.ApplicationStatusRejected
		app.StatusReason = req.Reason
		app.DecidedBy = actorRef(actorID)
		app.DecidedAt = &now
		if err := tx.UpdateApplication(ctx, app, previous); err != nil {
			return storeError(err, "application", app.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionRejectApplication, "application", app.ID,
			map[string]interface{}{"status": previous},
			map[string]interface{}{"status": models.ApplicationStatusRejected, "reason": req.Reason},
		)
	})
	if err != nil {
		return nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectApplication, ID: app.ID}, KindRejected, app.Email, map[string]interface{}{
		"Name":   app.FullName(),
		"Reason": req.Reason,
	})

	return app, nil
}

func (s *ApplicationService) Get(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, storeError(err, "application", id)
	}
	return app, nil
}

func (s *ApplicationService) List(ctx context.Context, filter store.ApplicationFilter) ([]models.Application, int64, error) {
	apps, total, err := s.store.ListApplications(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, total, nil
}

// ReconcileApprovals creates the Provider for any approved application that
// lacks one. Approval writes both in one transaction, so this only finds
// rows written by older releases or by hand.
func (s *ApplicationService) ReconcileApprovals(ctx context.Context) (int, error) {
	approved := models.ApplicationStatusApproved
	apps, _, err := s.store.ListApplications(ctx, store.ApplicationFilter{Status: &approved})
	if err != nil {
		return 0, fmt.Errorf("failed to list approved applications: %w", err)
	}

	created := 0
	for i := range apps {
		app := &apps[i]
		_, err := s.store.FindProviderByApplication(ctx, app.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return created, fmt.Errorf("failed to look up provider for %s: %w", app.ID, err)
		}

		provider := providerFromApplication(app)
		err = s.store.WithTx(ctx, func(tx store.Store) error {
			if err := tx.CreateProvider(ctx, provider); err != nil {
				return err
			}
			return createAuditLog(ctx, tx, uuid.Nil, ActionApproveApplication, "provider", provider.ID, nil, map[string]interface{}{
				"application_id": app.ID,
				"reconciled":     true,
			})
		})
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to reconcile application %s: %w", app.ID, err)
		}

		logrus.WithFields(logrus.Fields{
			"application_id": app.ID,
			"provider_id":    provider.ID,
		}).Warn("Created missing provider for approved application")
		created++
	}

	return created, nil
}

func providerFromApplication(app *models.Application) *models.Provider {
	return &models.Provider{
		ApplicationID: app.ID,
		Type:          app.Type,
		FirstName:     app.FirstName,
		LastName:      app.LastName,
		Email:         app.Email,
		Phone:         app.Phone,
		Status:        models.ProviderStatusActive,
	}
}

// checkApplicationTransition reports why app cannot move to next from its
// current status, if it cannot.
func checkApplicationTransition(app *models.Application, next models.ApplicationStatus, allowed ...models.ApplicationStatus) error {
	if app.Status.IsTerminal() {
		return &TerminalStateError{Resource: "application", ID: app.ID, Status: string(app.Status)}
	}
	for _, from := range allowed {
		if app.Status == from {
			return nil
		}
	}
	return &InvalidTransitionError{Resource: "application", ID: app.ID, From: string(app.Status), To: string(next)}
}
