// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthAccountDisabled    = "auth.account_disabled"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthPasswordChanged    = "auth.password_changed"

	// Access
	KeyAccessDenied = "access.denied"
	KeyRateLimited  = "access.rate_limited"

	// Resources
	KeyApplicationNotFound   = "application.not_found"
	KeyDocumentNotFound      = "document.not_found"
	KeyProviderNotFound      = "provider.not_found"
	KeySurveyNotFound        = "patient_survey.not_found"
	KeyPatientNotFound       = "patient.not_found"
	KeySubscriptionNotFound  = "subscription.not_found"
	KeyCommunicationNotFound = "communication.not_found"
	KeyUserNotFound          = "user.not_found"

	// Lifecycle
	KeyApplicationSubmitted = "application.submitted"
	KeySurveySubmitted      = "patient_survey.submitted"
	KeyDocumentSubmitted    = "document.submitted"
	KeyConflict             = "state.conflict"
	KeyTerminalState        = "state.terminal"
	KeyInvalidTransition    = "state.invalid_transition"
	KeyDocumentsIncomplete  = "document.incomplete"
	KeyDocumentInvalidKind  = "document.invalid_kind"
	KeyDocumentReviewed     = "document.already_reviewed"
	KeyDuplicateActive      = "subscription.duplicate_active"
	KeyAllotmentExceeded    = "subscription.allotment_exceeded"
	KeySubscriptionInactive = "subscription.inactive"
	KeyUpstreamUnavailable  = "upstream.unavailable"

	// Jobs
	KeyJobCompleted = "job.completed"

	// Validation
	KeyValidationInvalid = "validation.invalid"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"
	KeyFileRequired      = "file.required"

	KeyInternalError = "internal.error"
)
