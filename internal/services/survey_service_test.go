package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
)

type SurveyTestSuite struct {
	engineSuite
}

func TestSurveySuite(t *testing.T) {
	suite.Run(t, new(SurveyTestSuite))
}

func (s *SurveyTestSuite) newSurvey() *models.PatientSurvey {
	survey, err := s.svc.Surveys.SubmitSurvey(s.ctx, &SubmitSurveyRequest{
		FirstName: " Ruth ",
		LastName:  "Baker",
		Email:     "Ruth.Baker@Example.com",
		CareNeeds: []string{"mobility", "medication"},
	})
	s.Require().NoError(err)
	return survey
}

func (s *SurveyTestSuite) TestSubmitNormalisesContact() {
	survey := s.newSurvey()

	s.Equal(models.SurveyStatusPending, survey.Status)
	s.Equal("Ruth", survey.FirstName)
	s.Equal("ruth.baker@example.com", survey.Email)
}

func (s *SurveyTestSuite) TestApproveCreatesPatient() {
	survey := s.newSurvey()

	approved, patient, err := s.svc.Surveys.Approve(s.ctx, s.admin.ID, survey.ID)
	s.Require().NoError(err)
	s.Equal(models.SurveyStatusApproved, approved.Status)
	s.Equal(s.admin.ID, *approved.DecidedBy)
	s.Equal(survey.ID, patient.SurveyID)
	s.True(patient.Active)

	stored, err := s.store.FindPatientBySurvey(s.ctx, survey.ID)
	s.Require().NoError(err)
	s.Equal(patient.ID, stored.ID)
	s.Len(s.communications(survey.ID, KindApproved), 1)
}

func (s *SurveyTestSuite) TestRejectedSurveyCannotBeApproved() {
	survey := s.newSurvey()

	rejected, err := s.svc.Surveys.Reject(s.ctx, s.admin.ID, survey.ID, &ReasonRequest{Reason: "incomplete"})
	s.Require().NoError(err)
	s.Equal(models.SurveyStatusRejected, rejected.Status)
	s.Equal("incomplete", rejected.StatusReason)

	_, _, err = s.svc.Surveys.Approve(s.ctx, s.admin.ID, survey.ID)
	var terminal *TerminalStateError
	s.Require().ErrorAs(err, &terminal)

	_, err = s.svc.Surveys.Reject(s.ctx, s.admin.ID, survey.ID, &ReasonRequest{Reason: "duplicate"})
	s.ErrorAs(err, &terminal)

	stored, err := s.svc.Surveys.Get(s.ctx, survey.ID)
	s.Require().NoError(err)
	s.Equal(models.SurveyStatusRejected, stored.Status)
	s.Equal("incomplete", stored.StatusReason)

	_, err = s.store.FindPatientBySurvey(s.ctx, survey.ID)
	s.ErrorIs(err, store.ErrNotFound)
	s.Len(s.communications(survey.ID, KindRejected), 1)
}

func (s *SurveyTestSuite) TestApprovedSurveyIsTerminal() {
	survey := s.newSurvey()
	_, _, err := s.svc.Surveys.Approve(s.ctx, s.admin.ID, survey.ID)
	s.Require().NoError(err)

	_, err = s.svc.Surveys.Reject(s.ctx, s.admin.ID, survey.ID, &ReasonRequest{Reason: "changed mind"})
	var terminal *TerminalStateError
	s.ErrorAs(err, &terminal)
}

func (s *SurveyTestSuite) TestRejectNeedsReason() {
	survey := s.newSurvey()

	_, err := s.svc.Surveys.Reject(s.ctx, s.admin.ID, survey.ID, &ReasonRequest{})
	s.Error(err)

	stored, err := s.svc.Surveys.Get(s.ctx, survey.ID)
	s.Require().NoError(err)
	s.Equal(models.SurveyStatusPending, stored.Status)
}

func (s *SurveyTestSuite) TestUnknownSurveyIsNotFound() {
	_, _, err := s.svc.Surveys.Approve(s.ctx, s.admin.ID, uuid.New())
	var notFound *NotFoundError
	s.ErrorAs(err, &notFound)
}

func (s *SurveyTestSuite) TestConcurrentApproveHasOneWinner() {
	survey := s.newSurvey()

	// Both approvers read the pending survey before either writes.
	var arrived sync.WaitGroup
	arrived.Add(2)
	racing := s.container(&surveyBarrierStore{Store: s.store, arrived: &arrived})

	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range errs {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			_, _, errs[i] = racing.Surveys.Approve(s.ctx, s.admin.ID, survey.ID)
		}(i)
	}
	done.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &conflict):
			conflicts++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, successes)
	s.Equal(1, conflicts)

	patients, total, err := s.store.ListPatients(s.ctx, store.PatientFilter{})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(survey.ID, patients[0].SurveyID)
	s.Len(s.communications(survey.ID, KindApproved), 1)
}

// surveyBarrierStore holds every GetSurvey call until all expected callers
// have arrived.
type surveyBarrierStore struct {
	store.Store
	arrived *sync.WaitGroup
}

func (b *surveyBarrierStore) GetSurvey(ctx context.Context, id uuid.UUID) (*models.PatientSurvey, error) {
	survey, err := b.Store.GetSurvey(ctx, id)
	b.arrived.Done()
	b.arrived.Wait()
	return survey, err
}
