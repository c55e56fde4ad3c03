// internal/services/container.go
package services

import (
	"time"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

// Clock is the engine's source of "now". Tests pin it.
type Clock func() time.Time

// Dependencies are the collaborators the engine does not own.
type Dependencies struct {
	Store     store.Store
	Blobs     BlobStore
	Notifiers map[models.CommunicationChannel]Notifier
	Billing   Billing
	Clock     Clock
}

// Container holds every service wired against one store.
type Container struct {
	Store          store.Store
	Authz          *AuthorizationService
	Communications *CommunicationService
	Documents      *DocumentService
	Applications   *ApplicationService
	Surveys        *SurveyService
	Subscriptions  *SubscriptionService
	Providers      *ProviderService
	Patients       *PatientService
	Auth           *AuthService
	Users          *UserService
	Admin          *AdminService
	Exports        *ExportService
}

func NewContainer(cfg *config.Config, deps Dependencies) *Container {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	billing := deps.Billing
	if billing == nil {
		billing = NoopBilling{}
	}

	authz := NewAuthorizationService(deps.Store)
	comms := NewCommunicationService(
		deps.Store,
		deps.Notifiers,
		Channels(cfg.Communications.Channels),
		cfg.Communications.SendTimeout,
		cfg.Communications.RetryBackoff,
		clock,
	)
	docs := NewDocumentService(
		deps.Store,
		authz,
		deps.Blobs,
		RequiredDocuments(cfg.Workflow.RequiredDocuments),
		cfg.Storage.MaxUpload,
		cfg.Storage.Timeout,
		clock,
	)
	subs := NewSubscriptionService(deps.Store, authz, comms, billing, PlanFromConfig(cfg.Subscription), clock)

	return &Container{
		Store:          deps.Store,
		Authz:          authz,
		Communications: comms,
		Documents:      docs,
		Applications:   NewApplicationService(deps.Store, authz, docs, comms, clock),
		Surveys:        NewSurveyService(deps.Store, authz, comms, clock),
		Subscriptions:  subs,
		Providers:      NewProviderService(deps.Store, authz, comms, clock),
		Patients:       NewPatientService(deps.Store, authz),
		Auth:           NewAuthService(deps.Store, cfg.JWT, clock),
		Users:          NewUserService(deps.Store, authz),
		Admin:          NewAdminService(deps.Store),
		Exports:        NewExportService(deps.Store, authz),
	}
}

// RequiredDocuments converts the configured kind lists into the gate's map.
func RequiredDocuments(raw map[string][]string) map[models.ApplicationType][]string {
	out := make(map[models.ApplicationType][]string, len(raw))
	for appType, kinds := range raw {
		out[models.ApplicationType(appType)] = append([]string(nil), kinds...)
	}
	return out
}

func Channels(raw []string) []models.CommunicationChannel {
	out := make([]models.CommunicationChannel, 0, len(raw))
	for _, ch := range raw {
		out = append(out, models.CommunicationChannel(ch))
	}
	return out
}
