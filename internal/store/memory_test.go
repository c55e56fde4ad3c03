package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homecare/careops-backend/internal/models"
)

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestMemoryStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	app := &models.Application{Type: models.ApplicationTypeNurse, FirstName: "Ada", LastName: "Lane", Email: "ada@example.com"}
	require.NoError(t, s.CreateApplication(ctx, app))
	assert.NotEqual(t, uuid.Nil, app.ID)
	assert.Equal(t, models.ApplicationStatusSubmitted, app.Status)

	app.Status = models.ApplicationStatusUnderReview
	require.NoError(t, s.UpdateApplication(ctx, app, models.ApplicationStatusSubmitted))

	app.Status = models.ApplicationStatusApproved
	err := s.UpdateApplication(ctx, app, models.ApplicationStatusSubmitted)
	assert.ErrorIs(t, err, ErrConflict)

	missing := &models.Application{}
	missing.ID = uuid.New()
	assert.ErrorIs(t, s.UpdateApplication(ctx, missing, models.ApplicationStatusSubmitted), ErrNotFound)

	got, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusUnderReview, got.Status)
}

func TestMemoryStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	failure := errors.New("boom")

	var appID uuid.UUID
	err := s.WithTx(ctx, func(tx Store) error {
		app := &models.Application{Type: models.ApplicationTypeCNA, FirstName: "Bo", LastName: "Reyes", Email: "bo@example.com"}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return err
		}
		appID = app.ID
		return failure
	})
	assert.ErrorIs(t, err, failure)

	_, err = s.GetApplication(ctx, appID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Uniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	appID := uuid.New()

	require.NoError(t, s.CreateDocument(ctx, &models.Document{ApplicationID: appID, Kind: "license", BlobRef: "a"}))
	assert.ErrorIs(t, s.CreateDocument(ctx, &models.Document{ApplicationID: appID, Kind: "license", BlobRef: "b"}), ErrDuplicate)

	require.NoError(t, s.CreateProvider(ctx, &models.Provider{ApplicationID: appID}))
	assert.ErrorIs(t, s.CreateProvider(ctx, &models.Provider{ApplicationID: appID}), ErrDuplicate)

	patientID := uuid.New()
	first := &models.Subscription{PatientID: patientID}
	require.NoError(t, s.CreateSubscription(ctx, first))
	assert.ErrorIs(t, s.CreateSubscription(ctx, &models.Subscription{PatientID: patientID}), ErrDuplicate)

	first.Status = models.SubscriptionStatusCancelled
	require.NoError(t, s.UpdateSubscription(ctx, first, models.SubscriptionStatusActive))
	assert.NoError(t, s.CreateSubscription(ctx, &models.Subscription{PatientID: patientID}))

	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "ops@example.com"}))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Email: "OPS@example.com"}), ErrDuplicate)
}

func TestMemoryStore_ListOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	clock := &tickingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(WithMemoryClock(clock.Now))

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		survey := &models.PatientSurvey{FirstName: "P", LastName: "Q", Email: "p@example.com"}
		require.NoError(t, s.CreateSurvey(ctx, survey))
		ids = append(ids, survey.ID)
	}

	page, total, err := s.ListSurveys(ctx, SurveyFilter{Page: Page{Offset: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	empty, total, err := s.ListSurveys(ctx, SurveyFilter{Page: Page{Offset: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, empty)
}

func TestMemoryStore_UsageSnapshotGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sub := &models.Subscription{PatientID: uuid.New(), NurseAllotment: 1, CNAAllotment: 1, PeriodStart: time.Now()}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	stale := sub.Snapshot()
	sub.NurseVisitsUsed = 1
	require.NoError(t, s.UpdateSubscriptionUsage(ctx, sub, stale))

	sub.NurseVisitsUsed = 2
	assert.ErrorIs(t, s.UpdateSubscriptionUsage(ctx, sub, stale), ErrConflict)
}
