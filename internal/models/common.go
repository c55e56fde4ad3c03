// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns the id client-side so callers can reference a record
// before the insert returns.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type ApplicationType string

const (
	ApplicationTypeNurse ApplicationType = "nurse"
	ApplicationTypeCNA   ApplicationType = "cna"
)

type ApplicationStatus string

const (
	ApplicationStatusSubmitted     ApplicationStatus = "submitted"
	ApplicationStatusUnderReview   ApplicationStatus = "under_review"
	ApplicationStatusInfoRequested ApplicationStatus = "info_requested"
	ApplicationStatusApproved      ApplicationStatus = "approved"
	ApplicationStatusRejected      ApplicationStatus = "rejected"
)

func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

type DocumentStatus string

const (
	DocumentStatusMissing   DocumentStatus = "missing"
	DocumentStatusSubmitted DocumentStatus = "submitted"
	DocumentStatusApproved  DocumentStatus = "approved"
	DocumentStatusRejected  DocumentStatus = "rejected"
)

type DocumentDecision string

const (
	DocumentDecisionApprove DocumentDecision = "approve"
	DocumentDecisionReject  DocumentDecision = "reject"
)

type ProviderStatus string

const (
	ProviderStatusActive    ProviderStatus = "active"
	ProviderStatusSuspended ProviderStatus = "suspended"
)

type SurveyStatus string

const (
	SurveyStatusPending  SurveyStatus = "pending"
	SurveyStatusApproved SurveyStatus = "approved"
	SurveyStatusRejected SurveyStatus = "rejected"
)

func (s SurveyStatus) IsTerminal() bool {
	return s != SurveyStatusPending
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type VisitType string

const (
	VisitTypeNurse VisitType = "nurse"
	VisitTypeCNA   VisitType = "cna"
)

type CommunicationStatus string

const (
	CommunicationStatusQueued CommunicationStatus = "queued"
	CommunicationStatusSent   CommunicationStatus = "sent"
	CommunicationStatusFailed CommunicationStatus = "failed"
)

type CommunicationChannel string

const (
	ChannelEmail   CommunicationChannel = "email"
	ChannelWebhook CommunicationChannel = "webhook"
	ChannelStream  CommunicationChannel = "stream"
	ChannelLog     CommunicationChannel = "log"
)

type SubjectKind string

const (
	SubjectApplication   SubjectKind = "application"
	SubjectPatientSurvey SubjectKind = "patient_survey"
	SubjectSubscription  SubjectKind = "subscription"
	SubjectProvider      SubjectKind = "provider"
)

type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "super_admin"
)
