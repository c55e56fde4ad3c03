// internal/services/subscription_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

// Plan is the monthly allotment every new Subscription starts with.
type Plan struct {
	NurseAllotment int
	CNAAllotment   int
	PriceCents     int64
}

func PlanFromConfig(cfg config.SubscriptionConfig) Plan {
	return Plan{
		NurseAllotment: cfg.NurseAllotment,
		CNAAllotment:   cfg.CNAAllotment,
		PriceCents:     cfg.PriceCents,
	}
}

type SubscriptionService struct {
	store   store.Store
	authz   *AuthorizationService
	comms   *CommunicationService
	billing Billing
	plan    Plan
	clock   Clock
}

type CreateSubscriptionRequest struct {
	PatientID  uuid.UUID  `json:"patient_id"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
}

type RecordVisitRequest struct {
	VisitType models.VisitType `json:"visit_type" validate:"required,oneof=nurse cna"`
}

type AssignProviderRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
}

func NewSubscriptionService(s store.Store, authz *AuthorizationService, comms *CommunicationService, billing Billing, plan Plan, clock Clock) *SubscriptionService {
	return &SubscriptionService{
		store:   s,
		authz:   authz,
		comms:   comms,
		billing: billing,
		plan:    plan,
		clock:   clock,
	}
}

// CreateSubscription opens a plan for an active patient. The first period
// starts today and the anchor day is today's day of month.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, actorID, patientID uuid.UUID, providerID *uuid.UUID) (*models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionCreateSubscription); err != nil {
		return nil, err
	}

	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, storeError(err, "patient", patientID)
	}
	if !patient.Active {
		return nil, &ValidationError{Field: "patient_id", Message: "patient is inactive"}
	}

	if open, err := s.store.FindOpenSubscription(ctx, patientID); err == nil {
		return nil, &DuplicateActiveSubscriptionError{PatientID: patientID, SubscriptionID: open.ID}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check open subscriptions: %w", err)
	}

	now := s.clock().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		PatientID:      patientID,
		ProviderID:     providerID,
		Status:         models.SubscriptionStatusActive,
		NurseAllotment: s.plan.NurseAllotment,
		CNAAllotment:   s.plan.CNAAllotment,
		AnchorDay:      start.Day(),
		PeriodStart:    start,
		PeriodEnd:      addCalendarMonths(start, start.Day(), 1),
		PriceCents:     s.plan.PriceCents,
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if providerID != nil {
			if err := checkProvider(ctx, tx, *providerID); err != nil {
				return err
			}
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				dup := &DuplicateActiveSubscriptionError{PatientID: patientID}
				if open, findErr := tx.FindOpenSubscription(ctx, patientID); findErr == nil {
					dup.SubscriptionID = open.ID
				}
				return dup
			}
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		return createAuditLog(ctx, tx, actorID, ActionCreateSubscription, "subscription", sub.ID, nil, map[string]interface{}{
			"status":       sub.Status,
			"patient_id":   sub.PatientID,
			"period_start": sub.PeriodStart,
			"period_end":   sub.PeriodEnd,
		})
	})
	if err != nil {
		return nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectSubscription, ID: sub.ID}, KindSubscriptionCreated, patient.Email, map[string]interface{}{
		"Name":           patient.FirstName + " " + patient.LastName,
		"PeriodEnd":      sub.PeriodEnd.Format("2006-01-02"),
		"NurseAllotment": sub.NurseAllotment,
		"CNAAllotment":   sub.CNAAllotment,
	})

	s.chargePeriod(ctx, sub)
	return sub, nil
}

// RecordVisit consumes one visit of the given type from the current period.
// The write is a compare-and-set on the period and both counters, so
// concurrent callers can never push a counter past its allotment.
func (s *SubscriptionService) RecordVisit(ctx context.Context, actorID, id uuid.UUID, visitType models.VisitType) (*models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionRecordVisit); err != nil {
		return nil, err
	}
	if visitType != models.VisitTypeNurse && visitType != models.VisitTypeCNA {
		return nil, &ValidationError{Field: "visit_type", Message: "must be one of: nurse cna"}
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionStatusActive {
		return nil, &InactiveSubscriptionError{SubscriptionID: sub.ID, Status: sub.Status}
	}

	// Visits always count against the period containing now.
	if now := s.clock(); !now.Before(sub.PeriodEnd) {
		if sub, err = s.RolloverPeriod(ctx, sub.ID, now); err != nil {
			return nil, err
		}
	}

	if sub.Used(visitType) >= sub.Allotment(visitType) {
		return nil, &AllotmentExceededError{SubscriptionID: sub.ID, VisitType: visitType, Allotment: sub.Allotment(visitType)}
	}

	snapshot := sub.Snapshot()
	if visitType == models.VisitTypeCNA {
		sub.CNAVisitsUsed++
	} else {
		sub.NurseVisitsUsed++
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateSubscriptionUsage(ctx, sub, snapshot); err != nil {
			return storeError(err, "subscription", sub.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionRecordVisit, "subscription", sub.ID,
			map[string]interface{}{"nurse_visits_used": snapshot.NurseVisitsUsed, "cna_visits_used": snapshot.CNAVisitsUsed},
			map[string]interface{}{"nurse_visits_used": sub.NurseVisitsUsed, "cna_visits_used": sub.CNAVisitsUsed, "visit_type": visitType},
		)
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// RolloverPeriod advances the period window by whole calendar months until it
// contains now and zeroes both counters. It is a no-op while now is still
// inside the current window, so redundant scheduler runs are harmless.
func (s *SubscriptionService) RolloverPeriod(ctx context.Context, id uuid.UUID, now time.Time) (*models.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return nil, &TerminalStateError{Resource: "subscription", ID: sub.ID, Status: string(sub.Status)}
	}
	if now.Before(sub.PeriodEnd) {
		return sub, nil
	}

	snapshot := sub.Snapshot()
	previousStart := sub.PeriodStart
	sub.PeriodStart, sub.PeriodEnd = advancePeriod(sub.PeriodStart, sub.PeriodEnd, sub.AnchorDay, now)
	sub.NurseVisitsUsed = 0
	sub.CNAVisitsUsed = 0
	sub.BillingReference = ""

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateSubscriptionUsage(ctx, sub, snapshot); err != nil {
			return storeError(err, "subscription", sub.ID)
		}
		return createAuditLog(ctx, tx, uuid.Nil, ActionRolloverPeriod, "subscription", sub.ID,
			map[string]interface{}{"period_start": previousStart},
			map[string]interface{}{"period_start": sub.PeriodStart, "period_end": sub.PeriodEnd},
		)
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			// Another runner rolled it first; accept its result if it covers now.
			if current, getErr := s.Get(ctx, id); getErr == nil && !now.Before(current.PeriodStart) && now.Before(current.PeriodEnd) {
				return current, nil
			}
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"period_start":    sub.PeriodStart,
		"period_end":      sub.PeriodEnd,
	}).Info("Subscription period rolled over")

	s.chargePeriod(ctx, sub)
	return sub, nil
}

// RolloverDue rolls every open subscription whose period has ended. Failures
// on one subscription are logged and do not stop the sweep.
func (s *SubscriptionService) RolloverDue(ctx context.Context, now time.Time) (int, error) {
	subs, _, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{
		Statuses:        store.OpenSubscriptionStatuses,
		PeriodEndBefore: &now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	rolled := 0
	for _, sub := range subs {
		if now.Before(sub.PeriodEnd) {
			continue
		}
		if _, err := s.RolloverPeriod(ctx, sub.ID, now); err != nil {
			logrus.WithField("subscription_id", sub.ID).WithError(err).Error("Subscription rollover failed")
			continue
		}
		rolled++
	}

	logrus.WithFields(logrus.Fields{
		"due":    len(subs),
		"rolled": rolled,
	}).Info("Subscription rollover sweep finished")

	return rolled, nil
}

func (s *SubscriptionService) Pause(ctx context.Context, actorID, id uuid.UUID, reason string) (*models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionPauseSubscription); err != nil {
		return nil, err
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSubscriptionTransition(sub, models.SubscriptionStatusPaused, models.SubscriptionStatusActive); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		return pauseSubscription(ctx, tx, actorID, sub, reason)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, sub, KindSubscriptionPaused, map[string]interface{}{"Reason": reason})
	return sub, nil
}

// Resume reactivates a paused subscription. A subscription paired with a
// suspended provider stays paused until it is reassigned or the provider is
// reinstated.
func (s *SubscriptionService) Resume(ctx context.Context, actorID, id uuid.UUID) (*models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionResumeSubscription); err != nil {
		return nil, err
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSubscriptionTransition(sub, models.SubscriptionStatusActive, models.SubscriptionStatusPaused); err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if sub.ProviderID != nil {
			if err := checkProvider(ctx, tx, *sub.ProviderID); err != nil {
				return err
			}
		}
		sub.Status = models.SubscriptionStatusActive
		sub.PauseReason = ""
		if err := tx.UpdateSubscription(ctx, sub, models.SubscriptionStatusPaused); err != nil {
			return storeError(err, "subscription", sub.ID)
		}
		oldValues, newValues := statusChange(models.SubscriptionStatusPaused, models.SubscriptionStatusActive)
		return createAuditLog(ctx, tx, actorID, ActionResumeSubscription, "subscription", sub.ID, oldValues, newValues)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, sub, KindSubscriptionResumed, nil)
	// A period rolled while paused was never billed.
	if sub.BillingReference == "" {
		s.chargePeriod(ctx, sub)
	}
	return sub, nil
}

func (s *SubscriptionService) Cancel(ctx context.Context, actorID, id uuid.UUID) (*models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionCancelSubscription); err != nil {
		return nil, err
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSubscriptionTransition(sub, models.SubscriptionStatusCancelled,
		models.SubscriptionStatusActive, models.SubscriptionStatusPaused); err != nil {
		return nil, err
	}

	previous := sub.Status
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		now := s.clock()
		sub.Status = models.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		if err := tx.UpdateSubscription(ctx, sub, previous); err != nil {
			return storeError(err, "subscription", sub.ID)
		}
		oldValues, newValues := statusChange(previous, models.SubscriptionStatusCancelled)
		return createAuditLog(ctx, tx, actorID, ActionCancelSubscription, "subscription", sub.ID, oldValues, newValues)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, sub, KindSubscriptionCancelled, nil)
	return sub, nil
}

func (s *SubscriptionService) AssignProvider(ctx context.Context, actorID, id, providerID uuid.UUID) (*models.Subscription, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionAssignProvider); err != nil {
		return nil, err
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return nil, &TerminalStateError{Resource: "subscription", ID: sub.ID, Status: string(sub.Status)}
	}
	var previous *uuid.UUID
	if sub.ProviderID != nil {
		prev := *sub.ProviderID
		previous = &prev
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := checkProvider(ctx, tx, providerID); err != nil {
			return err
		}
		sub.ProviderID = &providerID
		if err := tx.UpdateSubscription(ctx, sub, sub.Status); err != nil {
			return storeError(err, "subscription", sub.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionAssignProvider, "subscription", sub.ID,
			map[string]interface{}{"provider_id": previous},
			map[string]interface{}{"provider_id": providerID},
		)
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, storeError(err, "subscription", id)
	}
	return sub, nil
}

func (s *SubscriptionService) List(ctx context.Context, filter store.SubscriptionFilter) ([]models.Subscription, int64, error) {
	subs, total, err := s.store.ListSubscriptions(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, total, nil
}

// checkProvider must run inside the transaction that pairs or reactivates a
// subscription. The shared lock makes a concurrent Suspend wait for it, and
// Suspend then sees the new pairing when it pauses subscriptions.
func checkProvider(ctx context.Context, tx store.Store, providerID uuid.UUID) error {
	provider, err := tx.LockProvider(ctx, providerID)
	if err != nil {
		return storeError(err, "provider", providerID)
	}
	if provider.Status != models.ProviderStatusActive {
		return &ValidationError{Field: "provider_id", Message: fmt.Sprintf("provider is %s", provider.Status)}
	}
	return nil
}

// chargePeriod opens the invoice for the current period. It runs when a
// subscription is created, rolled over while active, or resumed with an
// unbilled period. Billing is best effort; a failure is logged and the period
// stays unbilled.
func (s *SubscriptionService) chargePeriod(ctx context.Context, sub *models.Subscription) {
	if sub.PriceCents <= 0 || sub.Status != models.SubscriptionStatusActive {
		return
	}

	logger := logrus.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"period_start":    sub.PeriodStart,
	})

	ref, err := s.billing.ChargePeriod(ctx, sub)
	if err != nil {
		logger.WithError(err).Error("Failed to bill subscription period")
		return
	}
	if ref == "" {
		return
	}

	snapshot := sub.Snapshot()
	sub.BillingReference = ref
	if err := s.store.UpdateSubscriptionUsage(ctx, sub, snapshot); err != nil {
		logger.WithError(err).Warn("Failed to store billing reference")
	}
}

func (s *SubscriptionService) notify(ctx context.Context, sub *models.Subscription, kind string, data map[string]interface{}) {
	patient, err := s.store.GetPatient(ctx, sub.PatientID)
	if err != nil {
		logrus.WithField("subscription_id", sub.ID).WithError(err).Error("Failed to load patient for notification")
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["Name"] = patient.FirstName + " " + patient.LastName
	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectSubscription, ID: sub.ID}, kind, patient.Email, data)
}

// pauseSubscription writes active -> paused through tx. Callers have already
// checked the current status.
func pauseSubscription(ctx context.Context, tx store.Store, actorID uuid.UUID, sub *models.Subscription, reason string) error {
	sub.Status = models.SubscriptionStatusPaused
	sub.PauseReason = reason
	if err := tx.UpdateSubscription(ctx, sub, models.SubscriptionStatusActive); err != nil {
		return storeError(err, "subscription", sub.ID)
	}
	return createAuditLog(ctx, tx, actorID, ActionPauseSubscription, "subscription", sub.ID,
		map[string]interface{}{"status": models.SubscriptionStatusActive},
		map[string]interface{}{"status": models.SubscriptionStatusPaused, "reason": reason},
	)
}

func checkSubscriptionTransition(sub *models.Subscription, next models.SubscriptionStatus, allowed ...models.SubscriptionStatus) error {
	if sub.Status == models.SubscriptionStatusCancelled {
		return &TerminalStateError{Resource: "subscription", ID: sub.ID, Status: string(sub.Status)}
	}
	for _, from := range allowed {
		if sub.Status == from {
			return nil
		}
	}
	return &InvalidTransitionError{Resource: "subscription", ID: sub.ID, From: string(sub.Status), To: string(next)}
}

// addCalendarMonths moves t forward n months, landing on anchorDay or the
// last day of the target month when it is shorter.
func addCalendarMonths(t time.Time, anchorDay, n int) time.Time {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()

	day := anchorDay
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// advancePeriod works in UTC; the driver may hand back period bounds in the
// host's zone, which would move the anchor day.
func advancePeriod(start, end time.Time, anchorDay int, now time.Time) (time.Time, time.Time) {
	start, end = start.UTC(), end.UTC()
	for !now.Before(end) {
		start = end
		end = addCalendarMonths(start, anchorDay, 1)
	}
	return start, end
}
