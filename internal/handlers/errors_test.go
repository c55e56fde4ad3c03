package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := i18n.Initialize(); err != nil {
		panic(err)
	}
	m.Run()
}

func perform(handler gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/items/:id", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.APIError {
	var response struct {
		Success bool           `json:"success"`
		Error   utils.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	return response.Error
}

func TestRespondError(t *testing.T) {
	id := uuid.New()
	validationErr := utils.ValidateStruct(&services.RecordVisitRequest{VisitType: "therapist"})
	require.Error(t, validationErr)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validator", fmt.Errorf("validation failed: %w", validationErr), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"validation", &services.ValidationError{Field: "email", Message: "taken"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"disabled", services.ErrAccountDisabled, http.StatusForbidden, "FORBIDDEN"},
		{"not found", &services.NotFoundError{Resource: "subscription", ID: id}, http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", &services.ForbiddenError{ActorID: id, Action: services.ActionRunJobs}, http.StatusForbidden, "FORBIDDEN"},
		{"conflict", &services.ConflictError{Resource: "application", ID: id}, http.StatusConflict, "CONFLICT"},
		{"terminal", &services.TerminalStateError{Resource: "application", ID: id, Status: "approved"}, http.StatusConflict, "TERMINAL_STATE"},
		{"transition", &services.InvalidTransitionError{Resource: "application", ID: id, From: "submitted", To: "approved"}, http.StatusConflict, "INVALID_TRANSITION"},
		{"duplicate", &services.DuplicateActiveSubscriptionError{PatientID: id, SubscriptionID: id}, http.StatusConflict, "DUPLICATE_ACTIVE_SUBSCRIPTION"},
		{"reviewed", &services.AlreadyReviewedError{DocumentID: id, Status: models.DocumentStatusApproved}, http.StatusConflict, "ALREADY_REVIEWED"},
		{"inactive", &services.InactiveSubscriptionError{SubscriptionID: id, Status: models.SubscriptionStatusPaused}, http.StatusConflict, "INACTIVE_SUBSCRIPTION"},
		{"incomplete", &services.DocumentsIncompleteError{ApplicationID: id, Missing: []string{"license"}}, http.StatusUnprocessableEntity, "DOCUMENTS_INCOMPLETE"},
		{"kind", &services.InvalidKindError{Kind: "tax_form", Type: models.ApplicationTypeNurse}, http.StatusUnprocessableEntity, "INVALID_KIND"},
		{"allotment", &services.AllotmentExceededError{SubscriptionID: id, VisitType: models.VisitTypeNurse, Allotment: 1}, http.StatusUnprocessableEntity, "ALLOTMENT_EXCEEDED"},
		{"upstream", &services.UpstreamUnavailableError{Service: "blob store", Err: errors.New("timeout")}, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(func(c *gin.Context) { respondError(c, tc.err) }, "/items/x")

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Code)
		})
	}
}

func TestRespondErrorCarriesMissingKinds(t *testing.T) {
	err := fmt.Errorf("approve: %w", &services.DocumentsIncompleteError{Missing: []string{"license", "insurance"}})
	w := perform(func(c *gin.Context) { respondError(c, err) }, "/items/x")

	details := decodeError(t, w).Details.(map[string]interface{})
	assert.Equal(t, []interface{}{"license", "insurance"}, details["missing"])
}

func TestParamID(t *testing.T) {
	var got uuid.UUID
	handler := func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		got = id
		c.Status(http.StatusNoContent)
	}

	w := perform(handler, "/items/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	id := uuid.New()
	w = perform(handler, "/items/"+id.String())
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, id, got)
}
