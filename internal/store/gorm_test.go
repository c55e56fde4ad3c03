package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/homecare/careops-backend/internal/models"
)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *GormStore) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return mock, NewGormStore(db)
}

func TestUpdateApplication_Success(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`UPDATE "applications" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	app := &models.Application{Status: models.ApplicationStatusUnderReview}
	app.ID = uuid.New()

	err := s.UpdateApplication(context.Background(), app, models.ApplicationStatusSubmitted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateApplication_StaleStatusIsConflict(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`UPDATE "applications" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	app := &models.Application{Status: models.ApplicationStatusApproved}
	app.ID = uuid.New()

	err := s.UpdateApplication(context.Background(), app, models.ApplicationStatusUnderReview)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateApplication_MissingRowIsNotFound(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`UPDATE "applications" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	app := &models.Application{Status: models.ApplicationStatusApproved}
	app.ID = uuid.New()

	err := s.UpdateApplication(context.Background(), app, models.ApplicationStatusUnderReview)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSurvey_NotFound(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "patient_surveys"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	survey, err := s.GetSurvey(context.Background(), uuid.New())
	assert.Nil(t, survey)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubscription_OpenSubscriptionExists(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sub := &models.Subscription{PatientID: uuid.New()}
	err := s.CreateSubscription(context.Background(), sub)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSubscriptionUsage_CounterMovedIsConflict(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`UPDATE "subscriptions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sub := &models.Subscription{Status: models.SubscriptionStatusActive, NurseVisitsUsed: 1}
	sub.ID = uuid.New()
	expected := models.UsageSnapshot{Status: models.SubscriptionStatusActive}

	err := s.UpdateSubscriptionUsage(context.Background(), sub, expected)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockProvider_TakesSharedRowLock(t *testing.T) {
	mock, s := setupMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "providers" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id.String(), "suspended"))

	provider, err := s.LockProvider(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusSuspended, provider.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockApplication_TakesRowLock(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "applications" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	app, err := s.LockApplication(context.Background(), uuid.New())
	assert.Nil(t, app)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
