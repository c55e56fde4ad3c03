// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Application is a request to become a Provider. It is soft-retained after a
// decision so the audit trail stays intact.
type Application struct {
	BaseModel
	Type         ApplicationType   `json:"type" gorm:"type:varchar(20);not null;index"`
	FirstName    string            `json:"first_name" gorm:"size:100;not null"`
	LastName     string            `json:"last_name" gorm:"size:100;not null"`
	Email        string            `json:"email" gorm:"size:255;not null;index"`
	Phone        string            `json:"phone" gorm:"size:30"`
	Status       ApplicationStatus `json:"status" gorm:"type:varchar(20);default:'submitted';index"`
	StatusReason string            `json:"status_reason,omitempty" gorm:"type:text"`
	ClaimedBy    *uuid.UUID        `json:"claimed_by" gorm:"type:uuid"`
	DecidedBy    *uuid.UUID        `json:"decided_by" gorm:"type:uuid"`
	DecidedAt    *time.Time        `json:"decided_at"`
}

func (a *Application) FullName() string {
	return a.FirstName + " " + a.LastName
}

// Document is one required piece of evidence for an Application. There is at
// most one Document per (application, kind); resubmission replaces it.
type Document struct {
	BaseModel
	ApplicationID uuid.UUID      `json:"application_id" gorm:"type:uuid;not null;uniqueIndex:idx_documents_application_kind"`
	Kind          string         `json:"kind" gorm:"size:50;not null;uniqueIndex:idx_documents_application_kind"`
	Status        DocumentStatus `json:"status" gorm:"type:varchar(20);default:'submitted';index"`
	BlobRef       string         `json:"blob_ref" gorm:"size:255;not null"`
	ContentType   string         `json:"content_type,omitempty" gorm:"size:100"`
	SizeBytes     int64          `json:"size_bytes"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	ReviewedBy    *uuid.UUID     `json:"reviewed_by" gorm:"type:uuid"`
	ReviewedAt    *time.Time     `json:"reviewed_at"`
	ReviewNote    string         `json:"review_note,omitempty" gorm:"type:text"`
}

// Provider is created exactly once, when its Application is approved.
type Provider struct {
	BaseModel
	ApplicationID uuid.UUID       `json:"application_id" gorm:"type:uuid;not null;uniqueIndex"`
	Type          ApplicationType `json:"type" gorm:"type:varchar(20);not null;index"`
	FirstName     string          `json:"first_name" gorm:"size:100;not null"`
	LastName      string          `json:"last_name" gorm:"size:100;not null"`
	Email         string          `json:"email" gorm:"size:255;not null"`
	Phone         string          `json:"phone" gorm:"size:30"`
	Status        ProviderStatus  `json:"status" gorm:"type:varchar(20);default:'active';index"`
	SuspendedAt   *time.Time      `json:"suspended_at"`
}
