// internal/models/patient.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PatientSurvey is an intake interest form awaiting admin approval.
type PatientSurvey struct {
	BaseModel
	FirstName    string         `json:"first_name" gorm:"size:100;not null"`
	LastName     string         `json:"last_name" gorm:"size:100;not null"`
	Email        string         `json:"email" gorm:"size:255;not null;index"`
	Phone        string         `json:"phone" gorm:"size:30"`
	Address      string         `json:"address" gorm:"type:text"`
	CareNeeds    pq.StringArray `json:"care_needs" gorm:"type:text[]"`
	Answers      JSONB          `json:"answers" gorm:"type:jsonb"`
	Status       SurveyStatus   `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	StatusReason string         `json:"status_reason,omitempty" gorm:"type:text"`
	DecidedBy    *uuid.UUID     `json:"decided_by" gorm:"type:uuid"`
	DecidedAt    *time.Time     `json:"decided_at"`
}

// Patient is created exactly once, when its PatientSurvey is approved.
type Patient struct {
	BaseModel
	SurveyID  uuid.UUID `json:"survey_id" gorm:"type:uuid;not null;uniqueIndex"`
	FirstName string    `json:"first_name" gorm:"size:100;not null"`
	LastName  string    `json:"last_name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"size:255;not null"`
	Phone     string    `json:"phone" gorm:"size:30"`
	Address   string    `json:"address" gorm:"type:text"`
	Active    bool      `json:"active" gorm:"default:true;index"`
}
