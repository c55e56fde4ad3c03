// internal/services/provider_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

type ProviderService struct {
	store store.Store
	authz *AuthorizationService
	comms *CommunicationService
	clock Clock
}

func NewProviderService(s store.Store, authz *AuthorizationService, comms *CommunicationService, clock Clock) *ProviderService {
	return &ProviderService{
		store: s,
		authz: authz,
		comms: comms,
		clock: clock,
	}
}

// Suspend takes a provider off duty and pauses every active subscription
// paired with it in the same transaction. Reinstating the provider does not
// resume those subscriptions.
func (s *ProviderService) Suspend(ctx context.Context, actorID, id uuid.UUID, reason string) (*models.Provider, []models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionSuspendProvider); err != nil {
		return nil, nil, err
	}

	provider, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if provider.Status != models.ProviderStatusActive {
		return nil, nil, &InvalidTransitionError{Resource: "provider", ID: provider.ID, From: string(provider.Status), To: string(models.ProviderStatusSuspended)}
	}

	var paused []models.Subscription
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		now := s.clock()
		provider.Status = models.ProviderStatusSuspended
		provider.SuspendedAt = &now
		if err := tx.UpdateProvider(ctx, provider, models.ProviderStatusActive); err != nil {
			return storeError(err, "provider", provider.ID)
		}

		subs, _, err := tx.ListSubscriptions(ctx, store.SubscriptionFilter{
			Statuses:   []models.SubscriptionStatus{models.SubscriptionStatusActive},
			ProviderID: &provider.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to list provider subscriptions: %w", err)
		}

		pauseReason := "provider suspended"
		if reason != "" {
			pauseReason = "provider suspended: " + reason
		}
		for i := range subs {
			if err := pauseSubscription(ctx, tx, actorID, &subs[i], pauseReason); err != nil {
				return err
			}
		}
		paused = subs

		return createAuditLog(ctx, tx, actorID, ActionSuspendProvider, "provider", provider.ID,
			map[string]interface{}{"status": models.ProviderStatusActive},
			map[string]interface{}{"status": models.ProviderStatusSuspended, "reason": reason, "paused_subscriptions": len(subs)},
		)
	})
	if err != nil {
		return nil, nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectProvider, ID: provider.ID}, KindProviderSuspended, provider.Email, map[string]interface{}{
		"Name":   provider.FirstName + " " + provider.LastName,
		"Reason": reason,
	})
	for i := range paused {
		sub := &paused[i]
		patient, err := s.store.GetPatient(ctx, sub.PatientID)
		if err != nil {
			continue
		}
		s.comms.Dispatch(ctx, Subject{Kind: models.SubjectSubscription, ID: sub.ID}, KindSubscriptionPaused, patient.Email, map[string]interface{}{
			"Name":   patient.FirstName + " " + patient.LastName,
			"Reason": sub.PauseReason,
		})
	}

	return provider, paused, nil
}

func (s *ProviderService) Reinstate(ctx context.Context, actorID, id uuid.UUID) (*models.Provider, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionReinstateProvider); err != nil {
		return nil, err
	}

	provider, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if provider.Status != models.ProviderStatusSuspended {
		return nil, &InvalidTransitionError{Resource: "provider", ID: provider.ID, From: string(provider.Status), To: string(models.ProviderStatusActive)}
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		provider.Status = models.ProviderStatusActive
		provider.SuspendedAt = nil
		if err := tx.UpdateProvider(ctx, provider, models.ProviderStatusSuspended); err != nil {
			return storeError(err, "provider", provider.ID)
		}
		oldValues, newValues := statusChange(models.ProviderStatusSuspended, models.ProviderStatusActive)
		return createAuditLog(ctx, tx, actorID, ActionReinstateProvider, "provider", provider.ID, oldValues, newValues)
	})
	if err != nil {
		return nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectProvider, ID: provider.ID}, KindProviderReinstated, provider.Email, map[string]interface{}{
		"Name": provider.FirstName + " " + provider.LastName,
	})

	return provider, nil
}

func (s *ProviderService) Get(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	provider, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, storeError(err, "provider", id)
	}
	return provider, nil
}

func (s *ProviderService) List(ctx context.Context, filter store.ProviderFilter) ([]models.Provider, int64, error) {
	providers, total, err := s.store.ListProviders(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, total, nil
}
