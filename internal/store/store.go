// Package store persists the lifecycle entities. Every write to a
// status-bearing entity is conditional on the status the caller last read.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

// Page is an offset+limit window. A zero Limit returns every row.
type Page struct {
	Offset int
	Limit  int
}

type ApplicationFilter struct {
	Page
	Status *models.ApplicationStatus
	Type   *models.ApplicationType
	Search string
}

type ProviderFilter struct {
	Page
	Status *models.ProviderStatus
	Type   *models.ApplicationType
}

type SurveyFilter struct {
	Page
	Status *models.SurveyStatus
	Search string
}

type PatientFilter struct {
	Page
	Active *bool
}

type SubscriptionFilter struct {
	Page
	Statuses        []models.SubscriptionStatus
	PatientID       *uuid.UUID
	ProviderID      *uuid.UUID
	PeriodEndBefore *time.Time
}

type CommunicationFilter struct {
	Page
	Status        *models.CommunicationStatus
	SubjectKind   *models.SubjectKind
	SubjectID     *uuid.UUID
	UpdatedBefore *time.Time
}

type UserFilter struct {
	Page
	Role   *models.UserRole
	Active *bool
}

type AuditLogFilter struct {
	Page
	ActorID    *uuid.UUID
	ResourceID *uuid.UUID
}

// Store is the Entity Store contract shared by the postgres and in-memory
// implementations.
type Store interface {
	// WithTx runs fn against a transactional view. Either every write made
	// through tx commits or none does.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	// LockApplication is GetApplication that also blocks concurrent writes to
	// the application until the surrounding transaction ends.
	LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error)
	UpdateApplication(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	FindDocument(ctx context.Context, applicationID uuid.UUID, kind string) (*models.Document, error)
	ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error)
	// LockDocuments is ListDocuments that also blocks concurrent document
	// writes for the application until the surrounding transaction ends.
	LockDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error

	CreateProvider(ctx context.Context, provider *models.Provider) error
	GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	// LockProvider reads the provider under a shared lock, so a status change
	// waits for the surrounding transaction.
	LockProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	FindProviderByApplication(ctx context.Context, applicationID uuid.UUID) (*models.Provider, error)
	ListProviders(ctx context.Context, filter ProviderFilter) ([]models.Provider, int64, error)
	UpdateProvider(ctx context.Context, provider *models.Provider, expected models.ProviderStatus) error

	CreateSurvey(ctx context.Context, survey *models.PatientSurvey) error
	GetSurvey(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error)
	ListSurveys(ctx context.Context, filter SurveyFilter) ([]models.PatientSurvey, int64, error)
	UpdateSurvey(ctx context.Context, survey *models.PatientSurvey, expected models.SurveyStatus) error

	CreatePatient(ctx context.Context, patient *models.Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error)
	FindPatientBySurvey(ctx context.Context, surveyID uuid.UUID) (*models.Patient, error)
	ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, int64, error)
	UpdatePatient(ctx context.Context, patient *models.Patient, expectedActive bool) error

	// CreateSubscription fails with ErrDuplicate when the patient already
	// has an active or paused subscription.
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindOpenSubscription(ctx context.Context, patientID uuid.UUID) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, int64, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription, expected models.SubscriptionStatus) error
	UpdateSubscriptionUsage(ctx context.Context, sub *models.Subscription, expected models.UsageSnapshot) error

	CreateCommunication(ctx context.Context, comm *models.Communication) error
	GetCommunication(ctx context.Context, id uuid.UUID) (*models.Communication, error)
	ListCommunications(ctx context.Context, filter CommunicationFilter) ([]models.Communication, int64, error)
	UpdateCommunicationStatus(ctx context.Context, comm *models.Communication, expected models.CommunicationStatus) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]models.User, int64, error)
	UpdateUser(ctx context.Context, user *models.User) error

	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error)
}

// OpenSubscriptionStatuses are the statuses that count against the
// one-subscription-per-patient rule.
var OpenSubscriptionStatuses = []models.SubscriptionStatus{
	models.SubscriptionStatusActive,
	models.SubscriptionStatusPaused,
}
