// internal/models/subscription.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a monthly care plan with a per-period visit allotment.
type Subscription struct {
	BaseModel
	PatientID        uuid.UUID          `json:"patient_id" gorm:"type:uuid;not null;index"`
	ProviderID       *uuid.UUID         `json:"provider_id" gorm:"type:uuid;index"`
	Status           SubscriptionStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	NurseAllotment   int                `json:"nurse_allotment" gorm:"not null;default:1"`
	CNAAllotment     int                `json:"cna_allotment" gorm:"not null;default:1"`
	NurseVisitsUsed  int                `json:"nurse_visits_used" gorm:"not null;default:0"`
	CNAVisitsUsed    int                `json:"cna_visits_used" gorm:"not null;default:0"`
	AnchorDay        int                `json:"anchor_day" gorm:"not null"`
	PeriodStart      time.Time          `json:"period_start" gorm:"not null"`
	PeriodEnd        time.Time          `json:"period_end" gorm:"not null;index"`
	PriceCents       int64              `json:"price_cents"`
	BillingReference string             `json:"billing_reference,omitempty" gorm:"size:255"`
	PauseReason      string             `json:"pause_reason,omitempty" gorm:"type:text"`
	CancelledAt      *time.Time         `json:"cancelled_at"`
}

// Allotment returns the per-period allotment for a visit type.
func (s *Subscription) Allotment(t VisitType) int {
	if t == VisitTypeCNA {
		return s.CNAAllotment
	}
	return s.NurseAllotment
}

// Used returns the visits consumed this period for a visit type.
func (s *Subscription) Used(t VisitType) int {
	if t == VisitTypeCNA {
		return s.CNAVisitsUsed
	}
	return s.NurseVisitsUsed
}

// UsageSnapshot identifies the exact period+counter state a visit write is
// conditional on.
type UsageSnapshot struct {
	Status          SubscriptionStatus
	PeriodStart     time.Time
	NurseVisitsUsed int
	CNAVisitsUsed   int
}

func (s *Subscription) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		Status:          s.Status,
		PeriodStart:     s.PeriodStart,
		NurseVisitsUsed: s.NurseVisitsUsed,
		CNAVisitsUsed:   s.CNAVisitsUsed,
	}
}
