package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, msg := range n.msgs {
		out = append(out, msg.Kind)
	}
	return out
}

type memoryBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{data: map[string][]byte{}}
}

func (b *memoryBlobs) Put(ctx context.Context, content []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	ref := "documents/test/" + utils.NanoID(12)
	b.data[ref] = append([]byte(nil), content...)
	return ref, nil
}

func (b *memoryBlobs) Get(ctx context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	content, ok := b.data[ref]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return content, nil
}

var errNotifierDown = errors.New("notifier down")

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1},
		Storage:     config.StorageConfig{Timeout: time.Second, MaxUpload: 1 << 20},
		Communications: config.CommunicationsConfig{
			Channels:     []string{"log"},
			SendTimeout:  time.Second,
			RetryBackoff: time.Minute,
		},
		Workflow: config.WorkflowConfig{
			RequiredDocuments: map[string][]string{
				"nurse": {"license", "insurance"},
				"cna":   {"certification", "insurance"},
			},
		},
		Subscription: config.SubscriptionConfig{NurseAllotment: 1, CNAAllotment: 1},
	}
}

// engineSuite wires every service against a memory store with a pinned clock.
type engineSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *fakeClock
	store    *store.MemoryStore
	notifier *recordingNotifier
	blobs    *memoryBlobs
	billing  Billing
	cfg      *config.Config
	svc      *Container
	admin    *models.User
	super    *models.User
}

func (s *engineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)}
	s.store = store.NewMemoryStore(store.WithMemoryClock(s.clock.Now))
	s.notifier = &recordingNotifier{}
	s.blobs = newMemoryBlobs()
	s.billing = nil
	s.cfg = testConfig()
	s.svc = s.container(s.store)
	s.admin = s.seedUser(models.UserRoleAdmin, "admin@careops.test")
	s.super = s.seedUser(models.UserRoleSuperAdmin, "root@careops.test")
}

func (s *engineSuite) container(st store.Store) *Container {
	return NewContainer(s.cfg, Dependencies{
		Store:     st,
		Blobs:     s.blobs,
		Notifiers: map[models.CommunicationChannel]Notifier{models.ChannelLog: s.notifier},
		Billing:   s.billing,
		Clock:     s.clock.Now,
	})
}

func (s *engineSuite) seedUser(role models.UserRole, email string) *models.User {
	user := &models.User{Email: email, Name: string(role), Role: role, Active: true, PasswordHash: "x"}
	s.Require().NoError(s.store.CreateUser(s.ctx, user))
	return user
}

func (s *engineSuite) newApplication(appType models.ApplicationType) *models.Application {
	app, err := s.svc.Applications.SubmitApplication(s.ctx, &SubmitApplicationRequest{
		Type:      appType,
		FirstName: "Nia",
		LastName:  "Okafor",
		Email:     "nia.okafor@example.com",
	})
	s.Require().NoError(err)
	return app
}

func (s *engineSuite) claimedApplication(appType models.ApplicationType) *models.Application {
	app := s.newApplication(appType)
	app, err := s.svc.Applications.Claim(s.ctx, s.admin.ID, app.ID)
	s.Require().NoError(err)
	return app
}

func (s *engineSuite) approveDocument(appID uuid.UUID, kind string) *models.Document {
	doc, err := s.svc.Documents.SubmitDocument(s.ctx, uuid.Nil, appID, &SubmitDocumentRequest{
		Kind:    kind,
		BlobRef: "documents/" + kind,
	})
	s.Require().NoError(err)

	doc, err = s.svc.Documents.ReviewDocument(s.ctx, s.admin.ID, doc.ID, &ReviewDocumentRequest{Decision: models.DocumentDecisionApprove})
	s.Require().NoError(err)
	return doc
}

func (s *engineSuite) newProvider() *models.Provider {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	for _, kind := range s.svc.Documents.RequiredKinds(app.Type) {
		s.approveDocument(app.ID, kind)
	}
	_, provider, err := s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	s.Require().NoError(err)
	return provider
}

func (s *engineSuite) newPatient() *models.Patient {
	survey, err := s.svc.Surveys.SubmitSurvey(s.ctx, &SubmitSurveyRequest{
		FirstName: "Ruth",
		LastName:  "Baker",
		Email:     "ruth.baker@example.com",
		CareNeeds: []string{"mobility"},
	})
	s.Require().NoError(err)

	_, patient, err := s.svc.Surveys.Approve(s.ctx, s.admin.ID, survey.ID)
	s.Require().NoError(err)
	return patient
}

// rebuild re-wires the services after a test changes cfg or billing.
func (s *engineSuite) rebuild() {
	s.svc = s.container(s.store)
}

func (s *engineSuite) communications(subjectID uuid.UUID, kind string) []models.Communication {
	comms, _, err := s.store.ListCommunications(s.ctx, store.CommunicationFilter{SubjectID: &subjectID})
	s.Require().NoError(err)

	var out []models.Communication
	for _, comm := range comms {
		if comm.Kind == kind {
			out = append(out, comm)
		}
	}
	return out
}

type fakeBilling struct {
	mu      sync.Mutex
	charges []uuid.UUID
	err     error
}

func (b *fakeBilling) ChargePeriod(ctx context.Context, sub *models.Subscription) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.charges = append(b.charges, sub.ID)
	return "pi_" + sub.PeriodStart.Format("20060102"), nil
}

// hookStore runs before once, just ahead of the first transaction, and
// records the locked reads made inside transactions.
type hookStore struct {
	store.Store
	once   sync.Once
	before func()

	mu     sync.Mutex
	locked []string
}

func (h *hookStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if h.before != nil {
		h.once.Do(h.before)
	}
	return h.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&lockRecorder{Store: tx, hook: h})
	})
}

func (h *hookStore) lockedKinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.locked...)
}

type lockRecorder struct {
	store.Store
	hook *hookStore
}

func (l *lockRecorder) record(kind string) {
	l.hook.mu.Lock()
	defer l.hook.mu.Unlock()
	l.hook.locked = append(l.hook.locked, kind)
}

func (l *lockRecorder) LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	l.record("application")
	return l.Store.LockApplication(ctx, id)
}

func (l *lockRecorder) LockProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	l.record("provider")
	return l.Store.LockProvider(ctx, id)
}

func (l *lockRecorder) LockDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	l.record("documents")
	return l.Store.LockDocuments(ctx, applicationID)
}
