// internal/services/patient_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

type PatientService struct {
	store store.Store
	authz *AuthorizationService
}

func NewPatientService(s store.Store, authz *AuthorizationService) *PatientService {
	return &PatientService{store: s, authz: authz}
}

// Deactivate blocks new subscriptions for the patient. An open subscription
// is left as it is.
func (s *PatientService) Deactivate(ctx context.Context, actorID, id uuid.UUID) (*models.Patient, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionDeactivatePatient); err != nil {
		return nil, err
	}

	patient, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return patient, nil
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		patient.Active = false
		if err := tx.UpdatePatient(ctx, patient, true); err != nil {
			return storeError(err, "patient", patient.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionDeactivatePatient, "patient", patient.ID,
			map[string]interface{}{"active": true},
			map[string]interface{}{"active": false},
		)
	})
	if err != nil {
		return nil, err
	}

	return patient, nil
}

func (s *PatientService) Get(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	patient, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, storeError(err, "patient", id)
	}
	return patient, nil
}

func (s *PatientService) List(ctx context.Context, filter store.PatientFilter) ([]models.Patient, int64, error) {
	patients, total, err := s.store.ListPatients(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}
