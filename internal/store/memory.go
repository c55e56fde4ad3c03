package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
)

// MemoryStore keeps every entity in process memory behind one mutex. It
// backs tests and the demo server mode.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memData)(nil)
)

type MemoryOption func(*memData)

// WithMemoryClock overrides the clock used for CreatedAt/UpdatedAt.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(d *memData) { d.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	d := &memData{now: time.Now}
	d.reset()
	for _, opt := range opts {
		opt(d)
	}
	return &MemoryStore{data: d}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data.restore(saved)
		return err
	}
	return nil
}

type memData struct {
	now func() time.Time

	applications   map[uuid.UUID]models.Application
	documents      map[uuid.UUID]models.Document
	providers      map[uuid.UUID]models.Provider
	surveys        map[uuid.UUID]models.PatientSurvey
	patients       map[uuid.UUID]models.Patient
	subscriptions  map[uuid.UUID]models.Subscription
	communications map[uuid.UUID]models.Communication
	users          map[uuid.UUID]models.User
	auditLogs      map[uuid.UUID]models.AuditLog
}

func (d *memData) reset() {
	d.applications = map[uuid.UUID]models.Application{}
	d.documents = map[uuid.UUID]models.Document{}
	d.providers = map[uuid.UUID]models.Provider{}
	d.surveys = map[uuid.UUID]models.PatientSurvey{}
	d.patients = map[uuid.UUID]models.Patient{}
	d.subscriptions = map[uuid.UUID]models.Subscription{}
	d.communications = map[uuid.UUID]models.Communication{}
	d.users = map[uuid.UUID]models.User{}
	d.auditLogs = map[uuid.UUID]models.AuditLog{}
}

func copyMap[T any](m map[uuid.UUID]T) map[uuid.UUID]T {
	out := make(map[uuid.UUID]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		now:            d.now,
		applications:   copyMap(d.applications),
		documents:      copyMap(d.documents),
		providers:      copyMap(d.providers),
		surveys:        copyMap(d.surveys),
		patients:       copyMap(d.patients),
		subscriptions:  copyMap(d.subscriptions),
		communications: copyMap(d.communications),
		users:          copyMap(d.users),
		auditLogs:      copyMap(d.auditLogs),
	}
}

func (d *memData) restore(saved *memData) {
	*d = *saved
}

// Nested transactions join the outer one.
func (d *memData) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(d)
}

func (d *memData) stamp(base *models.BaseModel) {
	now := d.now()
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

// newestFirst orders rows the same way the SQL store does and applies page.
func newestFirst[T any](rows []T, base func(*T) *models.BaseModel, page Page) []T {
	sort.Slice(rows, func(i, j int) bool {
		a, b := base(&rows[i]), base(&rows[j])
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	if page.Offset >= len(rows) {
		return []T{}
	}
	rows = rows[page.Offset:]
	if page.Limit > 0 && page.Limit < len(rows) {
		rows = rows[:page.Limit]
	}
	return rows
}

func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// Applications

func (d *memData) CreateApplication(ctx context.Context, app *models.Application) error {
	if _, ok := d.applications[app.ID]; ok && app.ID != uuid.Nil {
		return ErrDuplicate
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusSubmitted
	}
	d.stamp(&app.BaseModel)
	d.applications[app.ID] = *app
	return nil
}

func (d *memData) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, ok := d.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &app, nil
}

// LockApplication needs no row lock; memData is only reached under the store
// mutex.
func (d *memData) LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return d.GetApplication(ctx, id)
}

func (d *memData) ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error) {
	var rows []models.Application
	for _, app := range d.applications {
		if filter.Status != nil && app.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && app.Type != *filter.Type {
			continue
		}
		if !matches(filter.Search, app.FirstName, app.LastName, app.Email) {
			continue
		}
		rows = append(rows, app)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(a *models.Application) *models.BaseModel { return &a.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdateApplication(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error {
	current, ok := d.applications[app.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	current.Status = app.Status
	current.StatusReason = app.StatusReason
	current.ClaimedBy = app.ClaimedBy
	current.DecidedBy = app.DecidedBy
	current.DecidedAt = app.DecidedAt
	current.UpdatedAt = d.now()
	app.UpdatedAt = current.UpdatedAt
	d.applications[app.ID] = current
	return nil
}

// Documents

func (d *memData) CreateDocument(ctx context.Context, doc *models.Document) error {
	for _, existing := range d.documents {
		if existing.ApplicationID == doc.ApplicationID && existing.Kind == doc.Kind {
			return ErrDuplicate
		}
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusSubmitted
	}
	d.stamp(&doc.BaseModel)
	d.documents[doc.ID] = *doc
	return nil
}

func (d *memData) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, ok := d.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (d *memData) FindDocument(ctx context.Context, applicationID uuid.UUID, kind string) (*models.Document, error) {
	for _, doc := range d.documents {
		if doc.ApplicationID == applicationID && doc.Kind == kind {
			return &doc, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	docs := []models.Document{}
	for _, doc := range d.documents {
		if doc.ApplicationID == applicationID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Kind < docs[j].Kind })
	return docs, nil
}

// The store mutex already serializes transactions.
func (d *memData) LockDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	return d.ListDocuments(ctx, applicationID)
}

func (d *memData) UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error {
	current, ok := d.documents[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	current.Status = doc.Status
	current.BlobRef = doc.BlobRef
	current.ContentType = doc.ContentType
	current.SizeBytes = doc.SizeBytes
	current.SubmittedAt = doc.SubmittedAt
	current.ReviewedBy = doc.ReviewedBy
	current.ReviewedAt = doc.ReviewedAt
	current.ReviewNote = doc.ReviewNote
	current.UpdatedAt = d.now()
	doc.UpdatedAt = current.UpdatedAt
	d.documents[doc.ID] = current
	return nil
}

// Providers

func (d *memData) CreateProvider(ctx context.Context, provider *models.Provider) error {
	for _, existing := range d.providers {
		if existing.ApplicationID == provider.ApplicationID {
			return ErrDuplicate
		}
	}
	if provider.Status == "" {
		provider.Status = models.ProviderStatusActive
	}
	d.stamp(&provider.BaseModel)
	d.providers[provider.ID] = *provider
	return nil
}

func (d *memData) GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	provider, ok := d.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &provider, nil
}

func (d *memData) LockProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	return d.GetProvider(ctx, id)
}

func (d *memData) FindProviderByApplication(ctx context.Context, applicationID uuid.UUID) (*models.Provider, error) {
	for _, provider := range d.providers {
		if provider.ApplicationID == applicationID {
			return &provider, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListProviders(ctx context.Context, filter ProviderFilter) ([]models.Provider, int64, error) {
	var rows []models.Provider
	for _, provider := range d.providers {
		if filter.Status != nil && provider.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && provider.Type != *filter.Type {
			continue
		}
		rows = append(rows, provider)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(p *models.Provider) *models.BaseModel { return &p.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdateProvider(ctx context.Context, provider *models.Provider, expected models.ProviderStatus) error {
	current, ok := d.providers[provider.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	current.Status = provider.Status
	current.SuspendedAt = provider.SuspendedAt
	current.Email = provider.Email
	current.Phone = provider.Phone
	current.UpdatedAt = d.now()
	provider.UpdatedAt = current.UpdatedAt
	d.providers[provider.ID] = current
	return nil
}

// Surveys

func (d *memData) CreateSurvey(ctx context.Context, survey *models.PatientSurvey) error {
	if survey.Status == "" {
		survey.Status = models.SurveyStatusPending
	}
	d.stamp(&survey.BaseModel)
	d.surveys[survey.ID] = *survey
	return nil
}

func (d *memData) GetSurvey(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error) {
	survey, ok := d.surveys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &survey, nil
}

func (d *memData) ListSurveys(ctx context.Context, filter SurveyFilter) ([]models.PatientSurvey, int64, error) {
	var rows []models.PatientSurvey
	for _, survey := range d.surveys {
		if filter.Status != nil && survey.Status != *filter.Status {
			continue
		}
		if !matches(filter.Search, survey.FirstName, survey.LastName, survey.Email) {
			continue
		}
		rows = append(rows, survey)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(s *models.PatientSurvey) *models.BaseModel { return &s.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdateSurvey(ctx context.Context, survey *models.PatientSurvey, expected models.SurveyStatus) error {
	current, ok := d.surveys[survey.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	current.Status = survey.Status
	current.StatusReason = survey.StatusReason
	current.DecidedBy = survey.DecidedBy
	current.DecidedAt = survey.DecidedAt
	current.UpdatedAt = d.now()
	survey.UpdatedAt = current.UpdatedAt
	d.surveys[survey.ID] = current
	return nil
}

// Patients

func (d *memData) CreatePatient(ctx context.Context, patient *models.Patient) error {
	for _, existing := range d.patients {
		if existing.SurveyID == patient.SurveyID {
			return ErrDuplicate
		}
	}
	d.stamp(&patient.BaseModel)
	d.patients[patient.ID] = *patient
	return nil
}

func (d *memData) GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	patient, ok := d.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &patient, nil
}

func (d *memData) FindPatientBySurvey(ctx context.Context, surveyID uuid.UUID) (*models.Patient, error) {
	for _, patient := range d.patients {
		if patient.SurveyID == surveyID {
			return &patient, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, int64, error) {
	var rows []models.Patient
	for _, patient := range d.patients {
		if filter.Active != nil && patient.Active != *filter.Active {
			continue
		}
		rows = append(rows, patient)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(p *models.Patient) *models.BaseModel { return &p.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdatePatient(ctx context.Context, patient *models.Patient, expectedActive bool) error {
	current, ok := d.patients[patient.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Active != expectedActive {
		return ErrConflict
	}
	current.Active = patient.Active
	current.Email = patient.Email
	current.Phone = patient.Phone
	current.Address = patient.Address
	current.UpdatedAt = d.now()
	patient.UpdatedAt = current.UpdatedAt
	d.patients[patient.ID] = current
	return nil
}

// Subscriptions

func isOpen(status models.SubscriptionStatus) bool {
	for _, s := range OpenSubscriptionStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (d *memData) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.Status == "" {
		sub.Status = models.SubscriptionStatusActive
	}
	if isOpen(sub.Status) {
		for _, existing := range d.subscriptions {
			if existing.PatientID == sub.PatientID && isOpen(existing.Status) {
				return ErrDuplicate
			}
		}
	}
	d.stamp(&sub.BaseModel)
	d.subscriptions[sub.ID] = *sub
	return nil
}

func (d *memData) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, ok := d.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (d *memData) FindOpenSubscription(ctx context.Context, patientID uuid.UUID) (*models.Subscription, error) {
	for _, sub := range d.subscriptions {
		if sub.PatientID == patientID && isOpen(sub.Status) {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, int64, error) {
	var rows []models.Subscription
	for _, sub := range d.subscriptions {
		if len(filter.Statuses) > 0 {
			found := false
			for _, s := range filter.Statuses {
				if sub.Status == s {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.PatientID != nil && sub.PatientID != *filter.PatientID {
			continue
		}
		if filter.ProviderID != nil && (sub.ProviderID == nil || *sub.ProviderID != *filter.ProviderID) {
			continue
		}
		if filter.PeriodEndBefore != nil && sub.PeriodEnd.After(*filter.PeriodEndBefore) {
			continue
		}
		rows = append(rows, sub)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(s *models.Subscription) *models.BaseModel { return &s.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdateSubscription(ctx context.Context, sub *models.Subscription, expected models.SubscriptionStatus) error {
	current, ok := d.subscriptions[sub.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	current.Status = sub.Status
	current.ProviderID = sub.ProviderID
	current.PauseReason = sub.PauseReason
	current.CancelledAt = sub.CancelledAt
	current.UpdatedAt = d.now()
	sub.UpdatedAt = current.UpdatedAt
	d.subscriptions[sub.ID] = current
	return nil
}

func (d *memData) UpdateSubscriptionUsage(ctx context.Context, sub *models.Subscription, expected models.UsageSnapshot) error {
	current, ok := d.subscriptions[sub.ID]
	if !ok {
		return ErrNotFound
	}
	snap := current.Snapshot()
	if snap.Status != expected.Status ||
		!snap.PeriodStart.Equal(expected.PeriodStart) ||
		snap.NurseVisitsUsed != expected.NurseVisitsUsed ||
		snap.CNAVisitsUsed != expected.CNAVisitsUsed {
		return ErrConflict
	}
	current.NurseVisitsUsed = sub.NurseVisitsUsed
	current.CNAVisitsUsed = sub.CNAVisitsUsed
	current.PeriodStart = sub.PeriodStart
	current.PeriodEnd = sub.PeriodEnd
	current.BillingReference = sub.BillingReference
	current.UpdatedAt = d.now()
	sub.UpdatedAt = current.UpdatedAt
	d.subscriptions[sub.ID] = current
	return nil
}

// Communications

func (d *memData) CreateCommunication(ctx context.Context, comm *models.Communication) error {
	if comm.Status == "" {
		comm.Status = models.CommunicationStatusQueued
	}
	d.stamp(&comm.BaseModel)
	d.communications[comm.ID] = *comm
	return nil
}

func (d *memData) GetCommunication(ctx context.Context, id uuid.UUID) (*models.Communication, error) {
	comm, ok := d.communications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &comm, nil
}

func (d *memData) ListCommunications(ctx context.Context, filter CommunicationFilter) ([]models.Communication, int64, error) {
	var rows []models.Communication
	for _, comm := range d.communications {
		if filter.Status != nil && comm.Status != *filter.Status {
			continue
		}
		if filter.SubjectKind != nil && comm.SubjectKind != *filter.SubjectKind {
			continue
		}
		if filter.SubjectID != nil && comm.SubjectID != *filter.SubjectID {
			continue
		}
		if filter.UpdatedBefore != nil && comm.UpdatedAt.After(*filter.UpdatedBefore) {
			continue
		}
		rows = append(rows, comm)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(c *models.Communication) *models.BaseModel { return &c.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdateCommunicationStatus(ctx context.Context, comm *models.Communication, expected models.CommunicationStatus) error {
	current, ok := d.communications[comm.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	current.Status = comm.Status
	current.LastError = comm.LastError
	current.SentAt = comm.SentAt
	current.UpdatedAt = d.now()
	comm.UpdatedAt = current.UpdatedAt
	d.communications[comm.ID] = current
	return nil
}

// Users

func (d *memData) CreateUser(ctx context.Context, user *models.User) error {
	for _, existing := range d.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
	}
	d.stamp(&user.BaseModel)
	d.users[user.ID] = *user
	return nil
}

func (d *memData) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (d *memData) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range d.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	var rows []models.User
	for _, user := range d.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		rows = append(rows, user)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(u *models.User) *models.BaseModel { return &u.BaseModel }, filter.Page), total, nil
}

func (d *memData) UpdateUser(ctx context.Context, user *models.User) error {
	current, ok := d.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	current.Name = user.Name
	current.Role = user.Role
	current.Active = user.Active
	current.PasswordHash = user.PasswordHash
	current.LastLoginAt = user.LastLoginAt
	current.UpdatedAt = d.now()
	user.UpdatedAt = current.UpdatedAt
	d.users[user.ID] = current
	return nil
}

// Audit logs

func (d *memData) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	d.stamp(&entry.BaseModel)
	d.auditLogs[entry.ID] = *entry
	return nil
}

func (d *memData) ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	var rows []models.AuditLog
	for _, entry := range d.auditLogs {
		if filter.ActorID != nil && (entry.ActorID == nil || *entry.ActorID != *filter.ActorID) {
			continue
		}
		if filter.ResourceID != nil && (entry.ResourceID == nil || *entry.ResourceID != *filter.ResourceID) {
			continue
		}
		rows = append(rows, entry)
	}
	total := int64(len(rows))
	return newestFirst(rows, func(a *models.AuditLog) *models.BaseModel { return &a.BaseModel }, filter.Page), total, nil
}
