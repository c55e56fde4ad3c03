package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/middleware"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

const password = "Care!Ops2026"

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

type APITestSuite struct {
	suite.Suite
	router     *gin.Engine
	container  *services.Container
	superToken string
	adminToken string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.Require().NoError(i18n.Initialize())
	utils.SetJWTSecret("router-test-secret")
}

func (s *APITestSuite) SetupTest() {
	cfg := &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "router-test-secret", AccessTokenTTL: 1},
		Storage:     config.StorageConfig{LocalPath: s.T().TempDir(), Timeout: time.Second, MaxUpload: 1 << 20},
		Communications: config.CommunicationsConfig{
			Channels:     []string{"log"},
			SendTimeout:  time.Second,
			RetryBackoff: time.Minute,
		},
		Workflow: config.WorkflowConfig{
			RequiredDocuments: map[string][]string{
				"nurse": {"license", "insurance"},
				"cna":   {"certification", "insurance"},
			},
		},
		Subscription: config.SubscriptionConfig{NurseAllotment: 1, CNAAllotment: 1},
		Frontend:     config.FrontendConfig{AllowedOrigins: []string{"*"}},
	}

	s.container = services.NewContainer(cfg, services.Dependencies{
		Store:     store.NewMemoryStore(),
		Blobs:     services.NewFileBlobStore(cfg.Storage.LocalPath),
		Notifiers: map[models.CommunicationChannel]services.Notifier{models.ChannelLog: services.LogNotifier{}},
	})
	unlimited := func() *middleware.RateLimiter { return middleware.NewRateLimiter(rate.Inf, 1) }
	s.router = Initialize(cfg, s.container, &middleware.RateLimits{
		General: unlimited(),
		Auth:    unlimited(),
		Public:  unlimited(),
		Upload:  unlimited(),
	})

	ctx := context.Background()
	super, _, err := s.container.Users.SeedAdmin(ctx, "owner@careops.test", "Owner", password)
	s.Require().NoError(err)
	_, err = s.container.Users.CreateUser(ctx, super.ID, &services.CreateUserRequest{
		Email:    "case.worker@careops.test",
		Name:     "Case Worker",
		Password: password,
		Role:     models.UserRoleAdmin,
	})
	s.Require().NoError(err)

	s.superToken = s.login("owner@careops.test")
	s.adminToken = s.login("case.worker@careops.test")
}

func (s *APITestSuite) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func (s *APITestSuite) data(w *httptest.ResponseRecorder) map[string]interface{} {
	response := s.decode(w)
	s.Require().True(response["success"].(bool), w.Body.String())
	return response["data"].(map[string]interface{})
}

func (s *APITestSuite) errorCode(w *httptest.ResponseRecorder) string {
	response := s.decode(w)
	s.Require().False(response["success"].(bool))
	return response["error"].(map[string]interface{})["code"].(string)
}

func (s *APITestSuite) login(email string) string {
	w := s.do(http.MethodPost, "/v1/auth/login", gin.H{"email": email, "password": password}, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return s.data(w)["token"].(string)
}

func field(m map[string]interface{}, path ...string) interface{} {
	var v interface{} = m
	for _, key := range path {
		v = v.(map[string]interface{})[key]
	}
	return v
}

func (s *APITestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *APITestSuite) TestLoginRejectsBadPassword() {
	w := s.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "owner@careops.test", "password": "nope"}, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/auth/me", nil, s.adminToken)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("case.worker@careops.test", field(s.data(w), "user", "email"))
}

func (s *APITestSuite) TestProviderOnboarding() {
	w := s.do(http.MethodPost, "/v1/applications", gin.H{
		"type":       "nurse",
		"first_name": "Nia",
		"last_name":  "Okafor",
		"email":      "nia@example.com",
	}, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	body := s.data(w)
	appID := field(body, "application", "id").(string)
	s.Equal([]interface{}{"license", "insurance"}, body["required_documents"])

	// The console needs a token.
	w = s.do(http.MethodGet, "/v1/applications/"+appID, nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/claim", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("under_review", field(s.data(w), "application", "status"))

	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/approve", nil, s.adminToken)
	s.Require().Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("DOCUMENTS_INCOMPLETE", s.errorCode(w))

	licenseID := s.upload(appID, "license", pngHeader)
	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/documents", gin.H{
		"kind":     "insurance",
		"blob_ref": "documents/external/policy-77",
	}, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	insuranceID := field(s.data(w), "document", "id").(string)

	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/documents", gin.H{
		"kind":     "tax_form",
		"blob_ref": "documents/external/w9",
	}, "")
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("INVALID_KIND", s.errorCode(w))

	w = s.do(http.MethodGet, "/v1/documents/"+licenseID+"/content", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("image/png", w.Header().Get("Content-Type"))
	s.Equal(pngHeader, w.Body.Bytes())

	for _, id := range []string{licenseID, insuranceID} {
		w = s.do(http.MethodPost, "/v1/documents/"+id+"/review", gin.H{"decision": "approve"}, s.adminToken)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	}
	w = s.do(http.MethodPost, "/v1/documents/"+licenseID+"/review", gin.H{"decision": "reject"}, s.adminToken)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("ALREADY_REVIEWED", s.errorCode(w))

	w = s.do(http.MethodGet, "/v1/applications/"+appID+"/readiness", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, field(s.data(w), "readiness", "ready"))

	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/approve", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	body = s.data(w)
	s.Equal("approved", field(body, "application", "status"))
	s.Equal("active", field(body, "provider", "status"))
	providerID := field(body, "provider", "id").(string)

	w = s.do(http.MethodGet, "/v1/verify/providers/"+providerID, nil, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	body = s.data(w)
	s.Equal(true, body["verified"])
	s.Equal("Nia O.", field(body, "credential", "name"))
	s.NotContains(w.Body.String(), "nia@example.com")

	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/reject", gin.H{"reason": "late"}, s.adminToken)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("TERMINAL_STATE", s.errorCode(w))
}

func (s *APITestSuite) upload(appID, kind string, content []byte) string {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	s.Require().NoError(writer.WriteField("kind", kind))
	part, err := writer.CreateFormFile("file", kind+".png")
	s.Require().NoError(err)
	_, err = part.Write(content)
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/applications/"+appID+"/documents/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return field(s.data(w), "document", "id").(string)
}

func (s *APITestSuite) TestPatientSubscription() {
	w := s.do(http.MethodPost, "/v1/surveys", gin.H{
		"first_name": "Ruth",
		"last_name":  "Baker",
		"email":      "ruth@example.com",
		"care_needs": []string{"mobility"},
	}, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	surveyID := field(s.data(w), "survey", "id").(string)

	w = s.do(http.MethodPost, "/v1/surveys/"+surveyID+"/approve", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	patientID := field(s.data(w), "patient", "id").(string)

	w = s.do(http.MethodPost, "/v1/subscriptions", gin.H{"patient_id": patientID}, s.adminToken)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	subID := field(s.data(w), "subscription", "id").(string)

	w = s.do(http.MethodPost, "/v1/subscriptions", gin.H{"patient_id": patientID}, s.adminToken)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("DUPLICATE_ACTIVE_SUBSCRIPTION", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/visits", gin.H{"visit_type": "nurse"}, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.EqualValues(1, field(s.data(w), "subscription", "nurse_visits_used"))

	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/visits", gin.H{"visit_type": "nurse"}, s.adminToken)
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("ALLOTMENT_EXCEEDED", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/visits", gin.H{"visit_type": "therapist"}, s.adminToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("VALIDATION_ERROR", s.errorCode(w))

	w = s.do(http.MethodGet, "/v1/subscriptions/export?status=active", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Disposition"), "attachment")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	s.Require().NoError(err)
	rows, err := f.GetRows("Subscriptions")
	s.Require().NoError(err)
	s.Len(rows, 2)
	s.NoError(f.Close())

	// Cancelling is reserved for super admins.
	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/cancel", nil, s.adminToken)
	s.Equal(http.StatusForbidden, w.Code)
	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/cancel", nil, s.superToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("cancelled", field(s.data(w), "subscription", "status"))

	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/visits", gin.H{"visit_type": "cna"}, s.adminToken)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("INACTIVE_SUBSCRIPTION", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/subscriptions/"+subID+"/resume", nil, s.superToken)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("TERMINAL_STATE", s.errorCode(w))
}

func (s *APITestSuite) TestJobsRequireSuperAdmin() {
	w := s.do(http.MethodPost, "/v1/admin/jobs/rollover", nil, s.adminToken)
	s.Equal(http.StatusForbidden, w.Code)

	for _, job := range []string{"rollover", "retry-communications", "reconcile-approvals"} {
		w = s.do(http.MethodPost, "/v1/admin/jobs/"+job, nil, s.superToken)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		body := s.data(w)
		s.Equal(job, body["job"])
		s.EqualValues(0, body["processed"])
	}
}

func (s *APITestSuite) TestUserManagement() {
	newUser := gin.H{
		"email":    "night.shift@careops.test",
		"name":     "Night Shift",
		"password": password,
		"role":     "admin",
	}

	w := s.do(http.MethodPost, "/v1/users", newUser, s.adminToken)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/v1/users", newUser, s.superToken)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	userID := field(s.data(w), "user", "id").(string)

	w = s.do(http.MethodPut, "/v1/users/"+userID+"/active", gin.H{"active": false}, s.superToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "night.shift@careops.test", "password": password}, "")
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/v1/users?active=false", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(s.decode(w)["data"], 1)
}

func (s *APITestSuite) TestBadIDsAndLocalizedErrors() {
	w := s.do(http.MethodGet, "/v1/applications/not-a-uuid", nil, s.adminToken)
	s.Equal(http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/applications/6f1c2a52-1d8e-4c1e-9c55-5b0b4f0d8a11", nil)
	req.Header.Set("Authorization", "Bearer "+s.adminToken)
	req.Header.Set("Accept-Language", "es")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusNotFound, w.Code)
	response := s.decode(w)
	s.Equal(i18n.T("es", i18n.KeyApplicationNotFound), field(response, "error", "message"))
}

func (s *APITestSuite) TestAuditTrailEndpoint() {
	w := s.do(http.MethodPost, "/v1/applications", gin.H{
		"type":       "cna",
		"first_name": "Ade",
		"last_name":  "Bello",
		"email":      "ade@example.com",
	}, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	appID := field(s.data(w), "application", "id").(string)

	w = s.do(http.MethodPost, "/v1/applications/"+appID+"/claim", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/admin/audit-logs?resource_id="+appID, nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(s.decode(w)["data"], 2)

	w = s.do(http.MethodGet, "/v1/admin/dashboard", nil, s.adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.EqualValues(1, field(s.data(w), "stats", "applications_under_review"))
}
