// internal/services/document_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// DocumentService is the verification gate between an Application and its
// approval. Readiness means every required kind has an approved Document.
type DocumentService struct {
	store       store.Store
	authz       *AuthorizationService
	blobs       BlobStore
	required    map[models.ApplicationType][]string
	maxUpload   int64
	blobTimeout time.Duration
	clock       Clock
}

type SubmitDocumentRequest struct {
	Kind        string `json:"kind" validate:"required,doc_kind"`
	BlobRef     string `json:"blob_ref" validate:"required,max=255"`
	ContentType string `json:"content_type,omitempty" validate:"max=100"`
	SizeBytes   int64  `json:"size_bytes,omitempty" validate:"gte=0"`
}

type ReviewDocumentRequest struct {
	Decision models.DocumentDecision `json:"decision" validate:"required,oneof=approve reject"`
	Note     string                  `json:"note,omitempty" validate:"max=2000"`
}

// Readiness reports the gate state for one Application.
type Readiness struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Ready         bool      `json:"ready"`
	Required      []string  `json:"required"`
	Approved      []string  `json:"approved"`
	Missing       []string  `json:"missing"`
}

func NewDocumentService(s store.Store, authz *AuthorizationService, blobs BlobStore, required map[models.ApplicationType][]string, maxUpload int64, blobTimeout time.Duration, clock Clock) *DocumentService {
	return &DocumentService{
		store:       s,
		authz:       authz,
		blobs:       blobs,
		required:    required,
		maxUpload:   maxUpload,
		blobTimeout: blobTimeout,
		clock:       clock,
	}
}

func (s *DocumentService) RequiredKinds(appType models.ApplicationType) []string {
	return s.required[appType]
}

func (s *DocumentService) isRequired(appType models.ApplicationType, kind string) bool {
	for _, k := range s.required[appType] {
		if k == kind {
			return true
		}
	}
	return false
}

// SubmitDocument creates or replaces the Document for (application, kind). An
// application waiting on more information goes back under review.
func (s *DocumentService) SubmitDocument(ctx context.Context, actorID, applicationID uuid.UUID, req *SubmitDocumentRequest) (*models.Document, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionSubmitDocument); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var doc *models.Document
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		// Locked so a replacement cannot land after a concurrent approval.
		app, err := tx.LockApplication(ctx, applicationID)
		if err != nil {
			return storeError(err, "application", applicationID)
		}

		if !s.isRequired(app.Type, req.Kind) {
			return &InvalidKindError{Kind: req.Kind, Type: app.Type}
		}
		if app.Status.IsTerminal() {
			return &TerminalStateError{Resource: "application", ID: app.ID, Status: string(app.Status)}
		}

		now := s.clock()
		existing, err := tx.FindDocument(ctx, applicationID, req.Kind)
		switch {
		case errors.Is(err, store.ErrNotFound):
			doc = &models.Document{
				ApplicationID: applicationID,
				Kind:          req.Kind,
				Status:        models.DocumentStatusSubmitted,
				BlobRef:       req.BlobRef,
				ContentType:   req.ContentType,
				SizeBytes:     req.SizeBytes,
				SubmittedAt:   now,
			}
			if err := tx.CreateDocument(ctx, doc); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return &ConflictError{Resource: "document", ID: applicationID}
				}
				return fmt.Errorf("failed to create document: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load document: %w", err)
		default:
			previous := existing.Status
			existing.Status = models.DocumentStatusSubmitted
			existing.BlobRef = req.BlobRef
			existing.ContentType = req.ContentType
			existing.SizeBytes = req.SizeBytes
			existing.SubmittedAt = now
			existing.ReviewedBy = nil
			existing.ReviewedAt = nil
			existing.ReviewNote = ""
			if err := tx.UpdateDocument(ctx, existing, previous); err != nil {
				return storeError(err, "document", existing.ID)
			}
			doc = existing
		}

		if app.Status == models.ApplicationStatusInfoRequested {
			app.Status = models.ApplicationStatusUnderReview
			app.StatusReason = ""
			if err := tx.UpdateApplication(ctx, app, models.ApplicationStatusInfoRequested); err != nil {
				return storeError(err, "application", app.ID)
			}
			oldValues, newValues := statusChange(models.ApplicationStatusInfoRequested, models.ApplicationStatusUnderReview)
			if err := createAuditLog(ctx, tx, actorID, ActionSubmitDocument, "application", app.ID, oldValues, newValues); err != nil {
				return err
			}
		}

		return createAuditLog(ctx, tx, actorID, ActionSubmitDocument, "document", doc.ID, nil, map[string]interface{}{
			"kind":     doc.Kind,
			"blob_ref": doc.BlobRef,
		})
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// UploadDocument stores the bytes first and only then records the Document.
// A blob store failure leaves nothing behind in the entity store.
func (s *DocumentService) UploadDocument(ctx context.Context, actorID, applicationID uuid.UUID, kind string, content []byte) (*models.Document, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionSubmitDocument); err != nil {
		return nil, err
	}

	if len(content) == 0 {
		return nil, &ValidationError{Field: "file", Message: "file is empty"}
	}
	if s.maxUpload > 0 && int64(len(content)) > s.maxUpload {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("file exceeds %d bytes", s.maxUpload)}
	}
	contentType, ok := DetectDocumentType(content)
	if !ok {
		return nil, &ValidationError{Field: "file", Message: "only PDF, JPEG and PNG documents are accepted"}
	}

	// Fail fast on bad input before writing a blob nobody will reference.
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, storeError(err, "application", applicationID)
	}
	if !s.isRequired(app.Type, kind) {
		return nil, &InvalidKindError{Kind: kind, Type: app.Type}
	}
	if app.Status.IsTerminal() {
		return nil, &TerminalStateError{Resource: "application", ID: app.ID, Status: string(app.Status)}
	}

	putCtx, cancel := context.WithTimeout(ctx, s.blobTimeout)
	defer cancel()

	ref, err := s.blobs.Put(putCtx, content, contentType)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"application_id": applicationID,
			"kind":           kind,
		}).WithError(err).Error("Blob store upload failed")
		return nil, &UpstreamUnavailableError{Service: "blob store", Err: err}
	}

	return s.SubmitDocument(ctx, actorID, applicationID, &SubmitDocumentRequest{
		Kind:        kind,
		BlobRef:     ref,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
	})
}

func (s *DocumentService) ReviewDocument(ctx context.Context, actorID, documentID uuid.UUID, req *ReviewDocumentRequest) (*models.Document, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionReviewDocument); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	next := models.DocumentStatusApproved
	if req.Decision == models.DocumentDecisionReject {
		next = models.DocumentStatusRejected
	}

	var doc *models.Document
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		doc, err = tx.GetDocument(ctx, documentID)
		if err != nil {
			return storeError(err, "document", documentID)
		}

		if doc.Status != models.DocumentStatusSubmitted {
			return &AlreadyReviewedError{DocumentID: doc.ID, Status: doc.Status}
		}

		app, err := tx.LockApplication(ctx, doc.ApplicationID)
		if err != nil {
			return storeError(err, "application", doc.ApplicationID)
		}
		if app.Status.IsTerminal() {
			return &TerminalStateError{Resource: "application", ID: app.ID, Status: string(app.Status)}
		}

		now := s.clock()
		doc.Status = next
		doc.ReviewedBy = actorRef(actorID)
		doc.ReviewedAt = &now
		doc.ReviewNote = req.Note
		if err := tx.UpdateDocument(ctx, doc, models.DocumentStatusSubmitted); err != nil {
			return storeError(err, "document", doc.ID)
		}

		oldValues, newValues := statusChange(models.DocumentStatusSubmitted, next)
		return createAuditLog(ctx, tx, actorID, ActionReviewDocument, "document", doc.ID, oldValues, newValues)
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// IsReady is a pure read.
func (s *DocumentService) IsReady(ctx context.Context, applicationID uuid.UUID) (bool, error) {
	readiness, err := s.Readiness(ctx, applicationID)
	if err != nil {
		return false, err
	}
	return readiness.Ready, nil
}

func (s *DocumentService) Readiness(ctx context.Context, applicationID uuid.UUID) (*Readiness, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, storeError(err, "application", applicationID)
	}

	docs, err := s.store.ListDocuments(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	required := s.required[app.Type]
	missing := missingKinds(required, docs)

	approved := []string{}
	for _, doc := range docs {
		if doc.Status == models.DocumentStatusApproved {
			approved = append(approved, doc.Kind)
		}
	}

	return &Readiness{
		ApplicationID: applicationID,
		Ready:         len(missing) == 0,
		Required:      required,
		Approved:      approved,
		Missing:       missing,
	}, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.Document, error) {
	if _, err := s.store.GetApplication(ctx, applicationID); err != nil {
		return nil, storeError(err, "application", applicationID)
	}
	return s.store.ListDocuments(ctx, applicationID)
}

func (s *DocumentService) GetDocument(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, storeError(err, "document", documentID)
	}
	return doc, nil
}

// DocumentContent fetches the stored bytes for a Document.
func (s *DocumentService) DocumentContent(ctx context.Context, documentID uuid.UUID) (*models.Document, []byte, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}

	getCtx, cancel := context.WithTimeout(ctx, s.blobTimeout)
	defer cancel()

	content, err := s.blobs.Get(getCtx, doc.BlobRef)
	if err != nil {
		return nil, nil, &UpstreamUnavailableError{Service: "blob store", Err: err}
	}
	return doc, content, nil
}

// missingKinds lists required kinds without an approved Document, sorted.
func missingKinds(required []string, docs []models.Document) []string {
	approved := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if doc.Status == models.DocumentStatusApproved {
			approved[doc.Kind] = true
		}
	}

	missing := []string{}
	for _, kind := range required {
		if !approved[kind] {
			missing = append(missing, kind)
		}
	}
	sort.Strings(missing)
	return missing
}
