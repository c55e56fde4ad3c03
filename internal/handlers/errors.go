// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// respondError maps the engine's typed errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	var (
		validationErrs validator.ValidationErrors
		invalid        *services.ValidationError
		notFound       *services.NotFoundError
		forbidden      *services.ForbiddenError
		conflict       *services.ConflictError
		terminal       *services.TerminalStateError
		transition     *services.InvalidTransitionError
		duplicate      *services.DuplicateActiveSubscriptionError
		reviewed       *services.AlreadyReviewedError
		inactive       *services.InactiveSubscriptionError
		incomplete     *services.DocumentsIncompleteError
		invalidKind    *services.InvalidKindError
		exceeded       *services.AllotmentExceededError
		upstream       *services.UpstreamUnavailableError
	)

	switch {
	case errors.As(err, &validationErrs):
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
	case errors.As(err, &invalid):
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", invalid.Error(), []utils.ValidationError{{
			Field:   invalid.Field,
			Tag:     "invalid",
			Message: invalid.Message,
		}})
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidCredentials))
	case errors.Is(err, services.ErrAccountDisabled):
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAuthAccountDisabled))
	case errors.As(err, &notFound):
		utils.NotFoundResponse(c, notFound.Resource)
	case errors.As(err, &forbidden):
		utils.ForbiddenResponse(c, "")
	case errors.As(err, &conflict):
		utils.ConflictResponse(c, "CONFLICT", i18n.T(lang, i18n.KeyConflict), gin.H{"resource": conflict.Resource, "id": conflict.ID})
	case errors.As(err, &terminal):
		utils.ConflictResponse(c, "TERMINAL_STATE", i18n.T(lang, i18n.KeyTerminalState), gin.H{"status": terminal.Status})
	case errors.As(err, &transition):
		utils.ConflictResponse(c, "INVALID_TRANSITION", i18n.T(lang, i18n.KeyInvalidTransition), gin.H{"from": transition.From, "to": transition.To})
	case errors.As(err, &duplicate):
		utils.ConflictResponse(c, "DUPLICATE_ACTIVE_SUBSCRIPTION", i18n.T(lang, i18n.KeyDuplicateActive), gin.H{"subscription_id": duplicate.SubscriptionID})
	case errors.As(err, &reviewed):
		utils.ConflictResponse(c, "ALREADY_REVIEWED", i18n.T(lang, i18n.KeyDocumentReviewed), gin.H{"status": reviewed.Status})
	case errors.As(err, &inactive):
		utils.ConflictResponse(c, "INACTIVE_SUBSCRIPTION", i18n.T(lang, i18n.KeySubscriptionInactive), gin.H{"status": inactive.Status})
	case errors.As(err, &incomplete):
		utils.UnprocessableResponse(c, "DOCUMENTS_INCOMPLETE", i18n.T(lang, i18n.KeyDocumentsIncomplete), gin.H{"missing": incomplete.Missing})
	case errors.As(err, &invalidKind):
		utils.UnprocessableResponse(c, "INVALID_KIND", i18n.T(lang, i18n.KeyDocumentInvalidKind), gin.H{"kind": invalidKind.Kind, "type": invalidKind.Type})
	case errors.As(err, &exceeded):
		utils.UnprocessableResponse(c, "ALLOTMENT_EXCEEDED", i18n.T(lang, i18n.KeyAllotmentExceeded), gin.H{"visit_type": exceeded.VisitType, "allotment": exceeded.Allotment})
	case errors.As(err, &upstream):
		utils.BadGatewayResponse(c, gin.H{"service": upstream.Service})
	default:
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).WithError(err).Error("Unhandled request error")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON decodes and validates the body, reporting a 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be omitted.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

// reasonBody carries the optional free-text reason on pause and suspend.
type reasonBody struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return nil, false
	}
	return &id, true
}

func queryBool(c *gin.Context, name string) *bool {
	switch c.Query(name) {
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	}
	return nil
}

func storePage(params utils.PaginationParams) store.Page {
	return store.Page{Offset: params.Offset(), Limit: params.Limit}
}
