// internal/services/communication_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

// Communication kinds emitted by the lifecycle managers.
const (
	KindInfoRequested         = "info-requested"
	KindApproved              = "approved"
	KindRejected              = "rejected"
	KindSubscriptionCreated   = "subscription-created"
	KindSubscriptionPaused    = "subscription-paused"
	KindSubscriptionResumed   = "subscription-resumed"
	KindSubscriptionCancelled = "subscription-cancelled"
	KindProviderSuspended     = "provider-suspended"
	KindProviderReinstated    = "provider-reinstated"
)

// Message is what a Notifier receives for one Communication.
type Message struct {
	CommunicationID uuid.UUID
	SubjectKind     models.SubjectKind
	SubjectID       uuid.UUID
	Kind            string
	Recipient       string
	Data            map[string]interface{}
}

// Notifier delivers a message over one channel. Implementations must honor
// ctx cancellation.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type Subject struct {
	Kind models.SubjectKind
	ID   uuid.UUID
}

type RecordRequest struct {
	Subject   Subject
	Kind      string
	Channel   models.CommunicationChannel
	Recipient string
	Data      map[string]interface{}
}

type CommunicationService struct {
	store     store.Store
	notifiers map[models.CommunicationChannel]Notifier
	channels  []models.CommunicationChannel
	timeout   time.Duration
	backoff   time.Duration
	clock     Clock
}

func NewCommunicationService(s store.Store, notifiers map[models.CommunicationChannel]Notifier, channels []models.CommunicationChannel, timeout, backoff time.Duration, clock Clock) *CommunicationService {
	return &CommunicationService{
		store:     s,
		notifiers: notifiers,
		channels:  channels,
		timeout:   timeout,
		backoff:   backoff,
		clock:     clock,
	}
}

// Record stores a queued Communication and attempts delivery once. The
// returned error covers persistence only; delivery failures are recorded on
// the Communication and logged.
func (s *CommunicationService) Record(ctx context.Context, req RecordRequest) (*models.Communication, error) {
	comm := &models.Communication{
		SubjectKind: req.Subject.Kind,
		SubjectID:   req.Subject.ID,
		Kind:        req.Kind,
		Channel:     req.Channel,
		Recipient:   req.Recipient,
		Data:        models.JSONB(req.Data),
		Status:      models.CommunicationStatusQueued,
	}

	if err := s.store.CreateCommunication(ctx, comm); err != nil {
		return nil, fmt.Errorf("failed to record communication: %w", err)
	}

	s.deliver(ctx, comm)
	return comm, nil
}

// Dispatch records the transition on every configured channel. It runs after
// the transition has committed and never reports failure to the caller.
func (s *CommunicationService) Dispatch(ctx context.Context, subject Subject, kind, recipient string, data map[string]interface{}) {
	ctx = context.WithoutCancel(ctx)

	for _, channel := range s.channels {
		_, err := s.Record(ctx, RecordRequest{
			Subject:   subject,
			Kind:      kind,
			Channel:   channel,
			Recipient: recipient,
			Data:      data,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"subject_kind": subject.Kind,
				"subject_id":   subject.ID,
				"kind":         kind,
				"channel":      channel,
			}).WithError(err).Error("Failed to record communication")
		}
	}
}

// RetryFailed re-sends failed communications that have not been touched for
// the backoff window. It returns how many were delivered.
func (s *CommunicationService) RetryFailed(ctx context.Context) (int, error) {
	status := models.CommunicationStatusFailed
	cutoff := s.clock().Add(-s.backoff)

	comms, _, err := s.store.ListCommunications(ctx, store.CommunicationFilter{
		Status:        &status,
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list failed communications: %w", err)
	}

	delivered := 0
	for i := range comms {
		if s.deliver(ctx, &comms[i]) {
			delivered++
		}
	}

	logrus.WithFields(logrus.Fields{
		"candidates": len(comms),
		"delivered":  delivered,
	}).Info("Communication retry sweep finished")

	return delivered, nil
}

func (s *CommunicationService) Get(ctx context.Context, id uuid.UUID) (*models.Communication, error) {
	comm, err := s.store.GetCommunication(ctx, id)
	if err != nil {
		return nil, storeError(err, "communication", id)
	}
	return comm, nil
}

func (s *CommunicationService) List(ctx context.Context, filter store.CommunicationFilter) ([]models.Communication, int64, error) {
	return s.store.ListCommunications(ctx, filter)
}

func (s *CommunicationService) deliver(ctx context.Context, comm *models.Communication) bool {
	expected := comm.Status
	sendErr := s.send(ctx, comm)

	logger := logrus.WithFields(logrus.Fields{
		"communication_id": comm.ID,
		"channel":          comm.Channel,
		"kind":             comm.Kind,
	})

	if sendErr != nil {
		comm.Status = models.CommunicationStatusFailed
		comm.LastError = sendErr.Error()
		logger.WithError(sendErr).Warn("Communication delivery failed")
	} else {
		now := s.clock()
		comm.Status = models.CommunicationStatusSent
		comm.LastError = ""
		comm.SentAt = &now
	}

	if err := s.store.UpdateCommunicationStatus(ctx, comm, expected); err != nil {
		logger.WithError(err).Error("Failed to update communication status")
		return false
	}
	return sendErr == nil
}

func (s *CommunicationService) send(ctx context.Context, comm *models.Communication) error {
	notifier, ok := s.notifiers[comm.Channel]
	if !ok {
		return fmt.Errorf("no notifier configured for channel %s", comm.Channel)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return notifier.Send(sendCtx, Message{
		CommunicationID: comm.ID,
		SubjectKind:     comm.SubjectKind,
		SubjectID:       comm.SubjectID,
		Kind:            comm.Kind,
		Recipient:       comm.Recipient,
		Data:            comm.Data,
	})
}

// LogNotifier only writes the message to the application log.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	logrus.WithFields(logrus.Fields{
		"communication_id": msg.CommunicationID,
		"subject_kind":     msg.SubjectKind,
		"subject_id":       msg.SubjectID,
		"kind":             msg.Kind,
		"recipient":        msg.Recipient,
	}).Info("Notification")
	return nil
}
