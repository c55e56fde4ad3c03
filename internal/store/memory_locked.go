package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
)

// Locking entry points. Each call is its own short transaction against the
// shared data; WithTx callers reach memData directly while holding the lock.

func (s *MemoryStore) CreateApplication(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateApplication(ctx, app)
}

func (s *MemoryStore) LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LockApplication(ctx, id)
}

func (s *MemoryStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetApplication(ctx, id)
}

func (s *MemoryStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListApplications(ctx, filter)
}

func (s *MemoryStore) UpdateApplication(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateApplication(ctx, app, expected)
}

func (s *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateDocument(ctx, doc)
}

func (s *MemoryStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetDocument(ctx, id)
}

func (s *MemoryStore) FindDocument(ctx context.Context, applicationID uuid.UUID, kind string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindDocument(ctx, applicationID, kind)
}

func (s *MemoryStore) ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListDocuments(ctx, applicationID)
}

func (s *MemoryStore) LockDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LockDocuments(ctx, applicationID)
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateDocument(ctx, doc, expected)
}

func (s *MemoryStore) CreateProvider(ctx context.Context, provider *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateProvider(ctx, provider)
}

func (s *MemoryStore) LockProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LockProvider(ctx, id)
}

func (s *MemoryStore) GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetProvider(ctx, id)
}

func (s *MemoryStore) FindProviderByApplication(ctx context.Context, applicationID uuid.UUID) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindProviderByApplication(ctx, applicationID)
}

func (s *MemoryStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]models.Provider, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListProviders(ctx, filter)
}

func (s *MemoryStore) UpdateProvider(ctx context.Context, provider *models.Provider, expected models.ProviderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateProvider(ctx, provider, expected)
}

func (s *MemoryStore) CreateSurvey(ctx context.Context, survey *models.PatientSurvey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateSurvey(ctx, survey)
}

func (s *MemoryStore) GetSurvey(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetSurvey(ctx, id)
}

func (s *MemoryStore) ListSurveys(ctx context.Context, filter SurveyFilter) ([]models.PatientSurvey, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListSurveys(ctx, filter)
}

func (s *MemoryStore) UpdateSurvey(ctx context.Context, survey *models.PatientSurvey, expected models.SurveyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateSurvey(ctx, survey, expected)
}

func (s *MemoryStore) CreatePatient(ctx context.Context, patient *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreatePatient(ctx, patient)
}

func (s *MemoryStore) GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetPatient(ctx, id)
}

func (s *MemoryStore) FindPatientBySurvey(ctx context.Context, surveyID uuid.UUID) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindPatientBySurvey(ctx, surveyID)
}

func (s *MemoryStore) ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListPatients(ctx, filter)
}

func (s *MemoryStore) UpdatePatient(ctx context.Context, patient *models.Patient, expectedActive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdatePatient(ctx, patient, expectedActive)
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateSubscription(ctx, sub)
}

func (s *MemoryStore) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetSubscription(ctx, id)
}

func (s *MemoryStore) FindOpenSubscription(ctx context.Context, patientID uuid.UUID) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindOpenSubscription(ctx, patientID)
}

func (s *MemoryStore) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListSubscriptions(ctx, filter)
}

func (s *MemoryStore) UpdateSubscription(ctx context.Context, sub *models.Subscription, expected models.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateSubscription(ctx, sub, expected)
}

func (s *MemoryStore) UpdateSubscriptionUsage(ctx context.Context, sub *models.Subscription, expected models.UsageSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateSubscriptionUsage(ctx, sub, expected)
}

func (s *MemoryStore) CreateCommunication(ctx context.Context, comm *models.Communication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateCommunication(ctx, comm)
}

func (s *MemoryStore) GetCommunication(ctx context.Context, id uuid.UUID) (*models.Communication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetCommunication(ctx, id)
}

func (s *MemoryStore) ListCommunications(ctx context.Context, filter CommunicationFilter) ([]models.Communication, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListCommunications(ctx, filter)
}

func (s *MemoryStore) UpdateCommunicationStatus(ctx context.Context, comm *models.Communication, expected models.CommunicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateCommunicationStatus(ctx, comm, expected)
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateUser(ctx, user)
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetUser(ctx, id)
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindUserByEmail(ctx, email)
}

func (s *MemoryStore) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListUsers(ctx, filter)
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateUser(ctx, user)
}

func (s *MemoryStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateAuditLog(ctx, entry)
}

func (s *MemoryStore) ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListAuditLogs(ctx, filter)
}
