// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError means the record changed between read and write. The caller
// should re-fetch and retry.
type ConflictError struct {
	Resource string
	ID       uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

type TerminalStateError struct {
	Resource string
	ID       uuid.UUID
	Status   string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s %s is %s and cannot change", e.Resource, e.ID, e.Status)
}

// InvalidTransitionError covers a non-terminal record asked to make a move
// its current status does not allow, e.g. approving a submitted application
// nobody has claimed.
type InvalidTransitionError struct {
	Resource string
	ID       uuid.UUID
	From     string
	To       string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Resource, e.ID, e.From, e.To)
}

type DocumentsIncompleteError struct {
	ApplicationID uuid.UUID
	Missing       []string
}

func (e *DocumentsIncompleteError) Error() string {
	return fmt.Sprintf("application %s is missing approved documents: %s", e.ApplicationID, strings.Join(e.Missing, ", "))
}

type InvalidKindError struct {
	Kind string
	Type models.ApplicationType
}

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("document kind %q is not required for %s applications", e.Kind, e.Type)
}

type AlreadyReviewedError struct {
	DocumentID uuid.UUID
	Status     models.DocumentStatus
}

func (e *AlreadyReviewedError) Error() string {
	return fmt.Sprintf("document %s is already %s", e.DocumentID, e.Status)
}

type DuplicateActiveSubscriptionError struct {
	PatientID      uuid.UUID
	SubscriptionID uuid.UUID
}

func (e *DuplicateActiveSubscriptionError) Error() string {
	return fmt.Sprintf("patient %s already has open subscription %s", e.PatientID, e.SubscriptionID)
}

type AllotmentExceededError struct {
	SubscriptionID uuid.UUID
	VisitType      models.VisitType
	Allotment      int
}

func (e *AllotmentExceededError) Error() string {
	return fmt.Sprintf("subscription %s has used all %d %s visits this period", e.SubscriptionID, e.Allotment, e.VisitType)
}

type InactiveSubscriptionError struct {
	SubscriptionID uuid.UUID
	Status         models.SubscriptionStatus
}

func (e *InactiveSubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s is %s", e.SubscriptionID, e.Status)
}

// UpstreamUnavailableError wraps a failed call to an external collaborator
// whose result the operation cannot proceed without.
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

type ForbiddenError struct {
	ActorID uuid.UUID
	Action  Action
	Reason  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s may not %s: %s", e.ActorID, e.Action, e.Reason)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// storeError converts store sentinels into the typed errors callers match on.
func storeError(err error, resource string, id uuid.UUID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Resource: resource, ID: id}
	case errors.Is(err, store.ErrConflict):
		return &ConflictError{Resource: resource, ID: id}
	}
	return fmt.Errorf("%s %s: %w", resource, id, err)
}
