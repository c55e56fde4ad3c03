// internal/models/communication.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Communication is an append-only record of a notification tied to a
// lifecycle transition. Only the delivery status fields change after insert.
type Communication struct {
	BaseModel
	SubjectKind SubjectKind          `json:"subject_kind" gorm:"type:varchar(30);not null;index:idx_communications_subject"`
	SubjectID   uuid.UUID            `json:"subject_id" gorm:"type:uuid;not null;index:idx_communications_subject"`
	Kind        string               `json:"kind" gorm:"size:50;not null;index"`
	Channel     CommunicationChannel `json:"channel" gorm:"type:varchar(20);not null"`
	Recipient   string               `json:"recipient" gorm:"size:255;not null"`
	Data        JSONB                `json:"data" gorm:"type:jsonb"`
	Status      CommunicationStatus  `json:"status" gorm:"type:varchar(20);default:'queued';index"`
	LastError   string               `json:"last_error,omitempty" gorm:"type:text"`
	SentAt      *time.Time           `json:"sent_at"`
}
