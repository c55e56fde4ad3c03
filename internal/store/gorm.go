package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homecare/careops-backend/internal/models"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func paginate(db *gorm.DB, page Page) *gorm.DB {
	db = db.Order("created_at DESC").Order("id DESC")
	if page.Offset > 0 {
		db = db.Offset(page.Offset)
	}
	if page.Limit > 0 {
		db = db.Limit(page.Limit)
	}
	return db
}

// conditionalUpdate applies values to the row only while cond still holds.
// Zero affected rows means the row vanished (ErrNotFound) or moved on
// (ErrConflict).
func (s *GormStore) conditionalUpdate(ctx context.Context, model interface{}, id uuid.UUID, cond string, args []interface{}, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(model).
		Where("id = ?", id).
		Where(cond, args...).
		Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return translate(err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *GormStore) get(ctx context.Context, dest interface{}, id uuid.UUID) error {
	return translate(s.db.WithContext(ctx).Where("id = ?", id).Take(dest).Error)
}

func (s *GormStore) list(ctx context.Context, q *gorm.DB, page Page, dest interface{}) (int64, error) {
	base := q.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return 0, err
	}
	if err := paginate(base, page).Find(dest).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Applications

func (s *GormStore) CreateApplication(ctx context.Context, app *models.Application) error {
	return translate(s.db.WithContext(ctx).Create(app).Error)
}

func (s *GormStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := s.get(ctx, &app, id); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *GormStore) LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&app).Error
	if err != nil {
		return nil, translate(err)
	}
	return &app, nil
}

func (s *GormStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Application{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		q = q.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?", term, term, term)
	}

	var apps []models.Application
	total, err := s.list(ctx, q, filter.Page, &apps)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, total, nil
}

func (s *GormStore) UpdateApplication(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error {
	return s.conditionalUpdate(ctx, &models.Application{}, app.ID, "status = ?", []interface{}{expected}, map[string]interface{}{
		"status":        app.Status,
		"status_reason": app.StatusReason,
		"claimed_by":    app.ClaimedBy,
		"decided_by":    app.DecidedBy,
		"decided_at":    app.DecidedAt,
	})
}

// Documents

func (s *GormStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	return translate(s.db.WithContext(ctx).Create(doc).Error)
}

func (s *GormStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := s.get(ctx, &doc, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *GormStore) FindDocument(ctx context.Context, applicationID uuid.UUID, kind string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("application_id = ? AND kind = ?", applicationID, kind).
		Take(&doc).Error
	if err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

func (s *GormStore) ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("kind ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *GormStore) LockDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("application_id = ?", applicationID).
		Order("kind ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock documents: %w", err)
	}
	return docs, nil
}

func (s *GormStore) UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error {
	return s.conditionalUpdate(ctx, &models.Document{}, doc.ID, "status = ?", []interface{}{expected}, map[string]interface{}{
		"status":       doc.Status,
		"blob_ref":     doc.BlobRef,
		"content_type": doc.ContentType,
		"size_bytes":   doc.SizeBytes,
		"submitted_at": doc.SubmittedAt,
		"reviewed_by":  doc.ReviewedBy,
		"reviewed_at":  doc.ReviewedAt,
		"review_note":  doc.ReviewNote,
	})
}

// Providers

func (s *GormStore) CreateProvider(ctx context.Context, provider *models.Provider) error {
	return translate(s.db.WithContext(ctx).Create(provider).Error)
}

func (s *GormStore) GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := s.get(ctx, &provider, id); err != nil {
		return nil, err
	}
	return &provider, nil
}

func (s *GormStore) LockProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", id).
		Take(&provider).Error
	if err != nil {
		return nil, translate(err)
	}
	return &provider, nil
}

func (s *GormStore) FindProviderByApplication(ctx context.Context, applicationID uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).Take(&provider).Error; err != nil {
		return nil, translate(err)
	}
	return &provider, nil
}

func (s *GormStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]models.Provider, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Provider{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}

	var providers []models.Provider
	total, err := s.list(ctx, q, filter.Page, &providers)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, total, nil
}

func (s *GormStore) UpdateProvider(ctx context.Context, provider *models.Provider, expected models.ProviderStatus) error {
	return s.conditionalUpdate(ctx, &models.Provider{}, provider.ID, "status = ?", []interface{}{expected}, map[string]interface{}{
		"status":       provider.Status,
		"suspended_at": provider.SuspendedAt,
		"email":        provider.Email,
		"phone":        provider.Phone,
	})
}

// Surveys

func (s *GormStore) CreateSurvey(ctx context.Context, survey *models.PatientSurvey) error {
	return translate(s.db.WithContext(ctx).Create(survey).Error)
}

func (s *GormStore) GetSurvey(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error) {
	var survey models.PatientSurvey
	if err := s.get(ctx, &survey, id); err != nil {
		return nil, err
	}
	return &survey, nil
}

func (s *GormStore) ListSurveys(ctx context.Context, filter SurveyFilter) ([]models.PatientSurvey, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.PatientSurvey{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		q = q.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?", term, term, term)
	}

	var surveys []models.PatientSurvey
	total, err := s.list(ctx, q, filter.Page, &surveys)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list surveys: %w", err)
	}
	return surveys, total, nil
}

func (s *GormStore) UpdateSurvey(ctx context.Context, survey *models.PatientSurvey, expected models.SurveyStatus) error {
	return s.conditionalUpdate(ctx, &models.PatientSurvey{}, survey.ID, "status = ?", []interface{}{expected}, map[string]interface{}{
		"status":        survey.Status,
		"status_reason": survey.StatusReason,
		"decided_by":    survey.DecidedBy,
		"decided_at":    survey.DecidedAt,
	})
}

// Patients

func (s *GormStore) CreatePatient(ctx context.Context, patient *models.Patient) error {
	return translate(s.db.WithContext(ctx).Create(patient).Error)
}

func (s *GormStore) GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	var patient models.Patient
	if err := s.get(ctx, &patient, id); err != nil {
		return nil, err
	}
	return &patient, nil
}

func (s *GormStore) FindPatientBySurvey(ctx context.Context, surveyID uuid.UUID) (*models.Patient, error) {
	var patient models.Patient
	if err := s.db.WithContext(ctx).Where("survey_id = ?", surveyID).Take(&patient).Error; err != nil {
		return nil, translate(err)
	}
	return &patient, nil
}

func (s *GormStore) ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Patient{})
	if filter.Active != nil {
		q = q.Where("active = ?", *filter.Active)
	}

	var patients []models.Patient
	total, err := s.list(ctx, q, filter.Page, &patients)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}

func (s *GormStore) UpdatePatient(ctx context.Context, patient *models.Patient, expectedActive bool) error {
	return s.conditionalUpdate(ctx, &models.Patient{}, patient.ID, "active = ?", []interface{}{expectedActive}, map[string]interface{}{
		"active":  patient.Active,
		"email":   patient.Email,
		"phone":   patient.Phone,
		"address": patient.Address,
	})
}

// Subscriptions

func (s *GormStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	// The partial unique index on open subscriptions is the real guard; this
	// check gives the same answer without relying on index naming.
	var open int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("patient_id = ? AND status IN ?", sub.PatientID, OpenSubscriptionStatuses).
		Count(&open).Error
	if err != nil {
		return translate(err)
	}
	if open > 0 {
		return ErrDuplicate
	}
	return translate(s.db.WithContext(ctx).Create(sub).Error)
}

func (s *GormStore) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.get(ctx, &sub, id); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *GormStore) FindOpenSubscription(ctx context.Context, patientID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND status IN ?", patientID, OpenSubscriptionStatuses).
		Take(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *GormStore) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Subscription{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.PatientID != nil {
		q = q.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.ProviderID != nil {
		q = q.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.PeriodEndBefore != nil {
		q = q.Where("period_end <= ?", *filter.PeriodEndBefore)
	}

	var subs []models.Subscription
	total, err := s.list(ctx, q, filter.Page, &subs)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, total, nil
}

func (s *GormStore) UpdateSubscription(ctx context.Context, sub *models.Subscription, expected models.SubscriptionStatus) error {
	return s.conditionalUpdate(ctx, &models.Subscription{}, sub.ID, "status = ?", []interface{}{expected}, map[string]interface{}{
		"status":       sub.Status,
		"provider_id":  sub.ProviderID,
		"pause_reason": sub.PauseReason,
		"cancelled_at": sub.CancelledAt,
	})
}

func (s *GormStore) UpdateSubscriptionUsage(ctx context.Context, sub *models.Subscription, expected models.UsageSnapshot) error {
	cond := "status = ? AND period_start = ? AND nurse_visits_used = ? AND cna_visits_used = ?"
	args := []interface{}{expected.Status, expected.PeriodStart, expected.NurseVisitsUsed, expected.CNAVisitsUsed}
	return s.conditionalUpdate(ctx, &models.Subscription{}, sub.ID, cond, args, map[string]interface{}{
		"nurse_visits_used": sub.NurseVisitsUsed,
		"cna_visits_used":   sub.CNAVisitsUsed,
		"period_start":      sub.PeriodStart,
		"period_end":        sub.PeriodEnd,
		"billing_reference": sub.BillingReference,
	})
}

// Communications

func (s *GormStore) CreateCommunication(ctx context.Context, comm *models.Communication) error {
	return translate(s.db.WithContext(ctx).Create(comm).Error)
}

func (s *GormStore) GetCommunication(ctx context.Context, id uuid.UUID) (*models.Communication, error) {
	var comm models.Communication
	if err := s.get(ctx, &comm, id); err != nil {
		return nil, err
	}
	return &comm, nil
}

func (s *GormStore) ListCommunications(ctx context.Context, filter CommunicationFilter) ([]models.Communication, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Communication{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.SubjectKind != nil {
		q = q.Where("subject_kind = ?", *filter.SubjectKind)
	}
	if filter.SubjectID != nil {
		q = q.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.UpdatedBefore != nil {
		q = q.Where("updated_at <= ?", *filter.UpdatedBefore)
	}

	var comms []models.Communication
	total, err := s.list(ctx, q, filter.Page, &comms)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list communications: %w", err)
	}
	return comms, total, nil
}

func (s *GormStore) UpdateCommunicationStatus(ctx context.Context, comm *models.Communication, expected models.CommunicationStatus) error {
	return s.conditionalUpdate(ctx, &models.Communication{}, comm.ID, "status = ?", []interface{}{expected}, map[string]interface{}{
		"status":     comm.Status,
		"last_error": comm.LastError,
		"sent_at":    comm.SentAt,
	})
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.get(ctx, &user, id); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if filter.Role != nil {
		q = q.Where("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		q = q.Where("active = ?", *filter.Active)
	}

	var users []models.User
	total, err := s.list(ctx, q, filter.Page, &users)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, user *models.User) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"name":          user.Name,
			"role":          user.Role,
			"active":        user.Active,
			"password_hash": user.PasswordHash,
			"last_login_at": user.LastLoginAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Audit logs

func (s *GormStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.ActorID != nil {
		q = q.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.ResourceID != nil {
		q = q.Where("resource_id = ?", *filter.ResourceID)
	}

	var entries []models.AuditLog
	total, err := s.list(ctx, q, filter.Page, &entries)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, total, nil
}
