package services

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

const operatorPassword = "Care!Ops2026"

type OperatorTestSuite struct {
	engineSuite
}

func TestOperatorSuite(t *testing.T) {
	suite.Run(t, new(OperatorTestSuite))
}

func (s *OperatorTestSuite) TestSeedAdminRunsOnce() {
	user, created, err := s.svc.Users.SeedAdmin(s.ctx, "Owner@CareOps.test", "Owner", operatorPassword)
	s.Require().NoError(err)
	s.True(created)
	s.Equal("owner@careops.test", user.Email)
	s.Equal(models.UserRoleSuperAdmin, user.Role)

	again, created, err := s.svc.Users.SeedAdmin(s.ctx, "owner@careops.test", "Owner", operatorPassword)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(user.ID, again.ID)
}

func (s *OperatorTestSuite) TestLogin() {
	_, _, err := s.svc.Users.SeedAdmin(s.ctx, "owner@careops.test", "Owner", operatorPassword)
	s.Require().NoError(err)

	resp, err := s.svc.Auth.Login(s.ctx, &LoginRequest{Email: "owner@careops.test", Password: operatorPassword})
	s.Require().NoError(err)
	s.Equal("Bearer", resp.TokenType)
	s.Equal(3600, resp.ExpiresIn)
	s.NotNil(resp.User.LastLoginAt)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	s.Require().NoError(err)
	s.Equal(resp.User.ID.String(), claims.UserID)
	s.Equal(string(models.UserRoleSuperAdmin), claims.Role)

	_, err = s.svc.Auth.Login(s.ctx, &LoginRequest{Email: "owner@careops.test", Password: "wrong"})
	s.ErrorIs(err, ErrInvalidCredentials)
	_, err = s.svc.Auth.Login(s.ctx, &LoginRequest{Email: "nobody@careops.test", Password: operatorPassword})
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *OperatorTestSuite) TestDeactivatedUserCannotLoginOrAct() {
	user, err := s.svc.Users.CreateUser(s.ctx, s.super.ID, &CreateUserRequest{
		Email:    "case.worker@careops.test",
		Name:     "Case Worker",
		Password: operatorPassword,
		Role:     models.UserRoleAdmin,
	})
	s.Require().NoError(err)

	_, err = s.svc.Users.SetActive(s.ctx, s.super.ID, user.ID, false)
	s.Require().NoError(err)

	_, err = s.svc.Auth.Login(s.ctx, &LoginRequest{Email: user.Email, Password: operatorPassword})
	s.ErrorIs(err, ErrAccountDisabled)

	app := s.newApplication(models.ApplicationTypeNurse)
	_, err = s.svc.Applications.Claim(s.ctx, user.ID, app.ID)
	var forbidden *ForbiddenError
	s.ErrorAs(err, &forbidden)
}

func (s *OperatorTestSuite) TestUserManagementIsSuperAdminOnly() {
	req := &CreateUserRequest{
		Email:    "second@careops.test",
		Name:     "Second",
		Password: operatorPassword,
		Role:     models.UserRoleAdmin,
	}

	_, err := s.svc.Users.CreateUser(s.ctx, s.admin.ID, req)
	var forbidden *ForbiddenError
	s.Require().ErrorAs(err, &forbidden)

	_, err = s.svc.Users.CreateUser(s.ctx, s.super.ID, req)
	s.Require().NoError(err)

	_, err = s.svc.Users.CreateUser(s.ctx, s.super.ID, req)
	var invalid *ValidationError
	s.Require().ErrorAs(err, &invalid)
	s.Equal("email", invalid.Field)

	_, err = s.svc.Users.SetActive(s.ctx, s.super.ID, s.super.ID, false)
	s.ErrorAs(err, &invalid)
}

func (s *OperatorTestSuite) TestAnonymousActorOnlySelfServes() {
	app := s.newApplication(models.ApplicationTypeNurse)

	_, err := s.svc.Applications.Claim(s.ctx, uuid.Nil, app.ID)
	var forbidden *ForbiddenError
	s.Require().ErrorAs(err, &forbidden)
	s.Equal(ActionClaimApplication, forbidden.Action)

	_, err = s.svc.Applications.Claim(s.ctx, uuid.New(), app.ID)
	s.ErrorAs(err, &forbidden)
	s.Equal("unknown user", forbidden.Reason)
}

func (s *OperatorTestSuite) TestAuditTrailRecordsTransitions() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	_, err := s.svc.Applications.Reject(s.ctx, s.admin.ID, app.ID, &ReasonRequest{Reason: "duplicate"})
	s.Require().NoError(err)

	logs, total, err := s.svc.Admin.GetAuditLogs(s.ctx, store.AuditLogFilter{ResourceID: &app.ID})
	s.Require().NoError(err)
	s.EqualValues(3, total)

	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	s.True(actions[string(ActionSubmitApplication)])
	s.True(actions[string(ActionClaimApplication)])
	s.True(actions[string(ActionRejectApplication)])
}

func (s *OperatorTestSuite) TestDashboardStats() {
	s.newApplication(models.ApplicationTypeNurse)
	s.newProvider()
	s.newPatient()

	s.notifier.setErr(errors.New("smtp down"))
	s.newPatient()

	stats, err := s.svc.Admin.GetDashboardStats(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, stats.ApplicationsSubmitted)
	s.EqualValues(1, stats.ActiveProviders)
	s.EqualValues(2, stats.ActivePatients)
	s.EqualValues(1, stats.FailedCommunications)
}

func (s *OperatorTestSuite) TestExportSubscriptions() {
	provider := s.newProvider()
	patient := s.newPatient()
	sub, err := s.svc.Subscriptions.CreateSubscription(s.ctx, s.admin.ID, patient.ID, &provider.ID)
	s.Require().NoError(err)
	_, err = s.svc.Subscriptions.RecordVisit(s.ctx, s.admin.ID, sub.ID, models.VisitTypeNurse)
	s.Require().NoError(err)

	content, err := s.svc.Exports.ExportSubscriptions(s.ctx, s.admin.ID, store.SubscriptionFilter{})
	s.Require().NoError(err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	s.Require().NoError(err)
	defer f.Close()

	rows, err := f.GetRows("Subscriptions")
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(SubscriptionExportHeader, rows[0])
	s.Equal(sub.ID.String(), rows[1][0])
	s.Equal("Ruth Baker", rows[1][1])
	s.Equal("Nia Okafor", rows[1][3])
	s.Equal("active", rows[1][4])
	s.Equal("2026-01-15", rows[1][5])
	s.Equal("1/1", rows[1][7])
	s.Equal("0/1", rows[1][8])

	_, err = s.svc.Exports.ExportSubscriptions(s.ctx, uuid.Nil, store.SubscriptionFilter{})
	var forbidden *ForbiddenError
	s.ErrorAs(err, &forbidden)
}
