// internal/services/survey_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// SurveyService drives PatientSurvey -> Patient promotion. A rejected survey
// stays rejected; the respondent submits a new one.
type SurveyService struct {
	store store.Store
	authz *AuthorizationService
	comms *CommunicationService
	clock Clock
}

type SubmitSurveyRequest struct {
	FirstName string                 `json:"first_name" validate:"required,max=100"`
	LastName  string                 `json:"last_name" validate:"required,max=100"`
	Email     string                 `json:"email" validate:"required,email"`
	Phone     string                 `json:"phone,omitempty" validate:"omitempty,phone"`
	Address   string                 `json:"address,omitempty" validate:"max=500"`
	CareNeeds []string               `json:"care_needs,omitempty" validate:"max=20,dive,max=100"`
	Answers   map[string]interface{} `json:"answers,omitempty"`
}

func NewSurveyService(s store.Store, authz *AuthorizationService, comms *CommunicationService, clock Clock) *SurveyService {
	return &SurveyService{
		store: s,
		authz: authz,
		comms: comms,
		clock: clock,
	}
}

func (s *SurveyService) SubmitSurvey(ctx context.Context, req *SubmitSurveyRequest) (*models.PatientSurvey, error) {
	if err := s.authz.Authorize(ctx, uuid.Nil, ActionSubmitSurvey); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	survey := &models.PatientSurvey{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		Address:   req.Address,
		CareNeeds: pq.StringArray(req.CareNeeds),
		Answers:   models.JSONB(req.Answers),
		Status:    models.SurveyStatusPending,
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateSurvey(ctx, survey); err != nil {
			return fmt.Errorf("failed to create survey: %w", err)
		}
		return createAuditLog(ctx, tx, uuid.Nil, ActionSubmitSurvey, "patient_survey", survey.ID, nil, map[string]interface{}{
			"status": survey.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	return survey, nil
}

// Approve creates the Patient in the same transaction as the status flip.
func (s *SurveyService) Approve(ctx context.Context, actorID, id uuid.UUID) (*models.PatientSurvey, *models.Patient, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionApproveSurvey); err != nil {
		return nil, nil, err
	}

	survey, err := s.pending(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var patient *models.Patient
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		now := s.clock()
		survey.Status = models.SurveyStatusApproved
		survey.DecidedBy = actorRef(actorID)
		survey.DecidedAt = &now
		if err := tx.UpdateSurvey(ctx, survey, models.SurveyStatusPending); err != nil {
			return storeError(err, "patient_survey", survey.ID)
		}

		patient = &models.Patient{
			SurveyID:  survey.ID,
			FirstName: survey.FirstName,
			LastName:  survey.LastName,
			Email:     survey.Email,
			Phone:     survey.Phone,
			Address:   survey.Address,
			Active:    true,
		}
		if err := tx.CreatePatient(ctx, patient); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return &ConflictError{Resource: "patient_survey", ID: survey.ID}
			}
			return fmt.Errorf("failed to create patient: %w", err)
		}

		oldValues, newValues := statusChange(models.SurveyStatusPending, models.SurveyStatusApproved)
		newValues["patient_id"] = patient.ID
		return createAuditLog(ctx, tx, actorID, ActionApproveSurvey, "patient_survey", survey.ID, oldValues, newValues)
	})
	if err != nil {
		return nil, nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectPatientSurvey, ID: survey.ID}, KindApproved, survey.Email, map[string]interface{}{
		"Name":      survey.FirstName + " " + survey.LastName,
		"PatientID": patient.ID.String(),
	})

	return survey, patient, nil
}

func (s *SurveyService) Reject(ctx context.Context, actorID, id uuid.UUID, req *ReasonRequest) (*models.PatientSurvey, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionRejectSurvey); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	survey, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		now := s.clock()
		survey.Status = models.SurveyStatusRejected
		survey.StatusReason = req.Reason
		survey.DecidedBy = actorRef(actorID)
		survey.DecidedAt = &now
		if err := tx.UpdateSurvey(ctx, survey, models.SurveyStatusPending); err != nil {
			return storeError(err, "patient_survey", survey.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionRejectSurvey, "patient_survey", survey.ID,
			map[string]interface{}{"status": models.SurveyStatusPending},
			map[string]interface{}{"status": models.SurveyStatusRejected, "reason": req.Reason},
		)
	})
	if err != nil {
		return nil, err
	}

	s.comms.Dispatch(ctx, Subject{Kind: models.SubjectPatientSurvey, ID: survey.ID}, KindRejected, survey.Email, map[string]interface{}{
		"Name":   survey.FirstName + " " + survey.LastName,
		"Reason": req.Reason,
	})

	return survey, nil
}

func (s *SurveyService) Get(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error) {
	survey, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, storeError(err, "patient_survey", id)
	}
	return survey, nil
}

func (s *SurveyService) List(ctx context.Context, filter store.SurveyFilter) ([]models.PatientSurvey, int64, error) {
	surveys, total, err := s.store.ListSurveys(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list surveys: %w", err)
	}
	return surveys, total, nil
}

func (s *SurveyService) pending(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error) {
	survey, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if survey.Status.IsTerminal() {
		return nil, &TerminalStateError{Resource: "patient_survey", ID: survey.ID, Status: string(survey.Status)}
	}
	return survey, nil
}
