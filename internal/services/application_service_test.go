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

type ApplicationTestSuite struct {
	engineSuite
}

func TestApplicationSuite(t *testing.T) {
	suite.Run(t, new(ApplicationTestSuite))
}

func (s *ApplicationTestSuite) TestApproveRequiresEveryDocument() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	s.approveDocument(app.ID, "license")

	_, _, err := s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	var incomplete *DocumentsIncompleteError
	s.Require().ErrorAs(err, &incomplete)
	s.Equal([]string{"insurance"}, incomplete.Missing)

	current, err := s.svc.Applications.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusUnderReview, current.Status)

	s.approveDocument(app.ID, "insurance")
	approved, provider, err := s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusApproved, approved.Status)
	s.Equal(app.ID, provider.ApplicationID)
	s.Equal(models.ProviderStatusActive, provider.Status)

	stored, err := s.store.FindProviderByApplication(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(provider.ID, stored.ID)

	comms := s.communications(app.ID, KindApproved)
	s.Require().Len(comms, 1)
	s.Equal(models.CommunicationStatusSent, comms[0].Status)
	s.Equal(app.Email, comms[0].Recipient)
}

func (s *ApplicationTestSuite) TestRejectedDocumentBlocksApproval() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	s.approveDocument(app.ID, "license")

	doc, err := s.svc.Documents.SubmitDocument(s.ctx, uuid.Nil, app.ID, &SubmitDocumentRequest{Kind: "insurance", BlobRef: "documents/insurance"})
	s.Require().NoError(err)
	_, err = s.svc.Documents.ReviewDocument(s.ctx, s.admin.ID, doc.ID, &ReviewDocumentRequest{Decision: models.DocumentDecisionReject, Note: "expired"})
	s.Require().NoError(err)

	ready, err := s.svc.Documents.IsReady(s.ctx, app.ID)
	s.Require().NoError(err)
	s.False(ready)

	_, _, err = s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	var incomplete *DocumentsIncompleteError
	s.ErrorAs(err, &incomplete)
}

func (s *ApplicationTestSuite) TestClaimIsIdempotent() {
	app := s.newApplication(models.ApplicationTypeCNA)

	first, err := s.svc.Applications.Claim(s.ctx, s.admin.ID, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusUnderReview, first.Status)

	second, err := s.svc.Applications.Claim(s.ctx, s.super.ID, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusUnderReview, second.Status)
	s.Equal(s.admin.ID, *second.ClaimedBy)
}

func (s *ApplicationTestSuite) TestApproveUnclaimedIsInvalidTransition() {
	app := s.newApplication(models.ApplicationTypeNurse)

	_, _, err := s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	var invalid *InvalidTransitionError
	s.ErrorAs(err, &invalid)
}

func (s *ApplicationTestSuite) TestResubmissionReturnsToReview() {
	app := s.claimedApplication(models.ApplicationTypeNurse)

	app, err := s.svc.Applications.RequestInfo(s.ctx, s.admin.ID, app.ID, &ReasonRequest{Reason: "license scan is unreadable"})
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusInfoRequested, app.Status)

	comms := s.communications(app.ID, KindInfoRequested)
	s.Require().Len(comms, 1)
	s.Equal("license scan is unreadable", comms[0].Data["Reason"])

	_, err = s.svc.Documents.SubmitDocument(s.ctx, uuid.Nil, app.ID, &SubmitDocumentRequest{Kind: "license", BlobRef: "documents/license-v2"})
	s.Require().NoError(err)

	current, err := s.svc.Applications.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusUnderReview, current.Status)
	s.Empty(current.StatusReason)
}

func (s *ApplicationTestSuite) TestResubmittingDocumentReplacesIt() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	first := s.approveDocument(app.ID, "license")

	second, err := s.svc.Documents.SubmitDocument(s.ctx, uuid.Nil, app.ID, &SubmitDocumentRequest{Kind: "license", BlobRef: "documents/license-v2"})
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal(models.DocumentStatusSubmitted, second.Status)
	s.Nil(second.ReviewedBy)

	docs, err := s.svc.Documents.ListDocuments(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func (s *ApplicationTestSuite) TestDocumentKindMustBeRequired() {
	app := s.claimedApplication(models.ApplicationTypeCNA)

	_, err := s.svc.Documents.SubmitDocument(s.ctx, uuid.Nil, app.ID, &SubmitDocumentRequest{Kind: "license", BlobRef: "documents/license"})
	var invalid *InvalidKindError
	s.Require().ErrorAs(err, &invalid)
	s.Equal(models.ApplicationTypeCNA, invalid.Type)
}

func (s *ApplicationTestSuite) TestReviewTwiceIsAlreadyReviewed() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	doc := s.approveDocument(app.ID, "license")

	_, err := s.svc.Documents.ReviewDocument(s.ctx, s.admin.ID, doc.ID, &ReviewDocumentRequest{Decision: models.DocumentDecisionReject})
	var reviewed *AlreadyReviewedError
	s.Require().ErrorAs(err, &reviewed)
	s.Equal(models.DocumentStatusApproved, reviewed.Status)

	_, err = s.svc.Documents.ReviewDocument(s.ctx, s.admin.ID, uuid.New(), &ReviewDocumentRequest{Decision: models.DocumentDecisionApprove})
	var notFound *NotFoundError
	s.ErrorAs(err, &notFound)
}

func (s *ApplicationTestSuite) TestTerminalApplicationRejectsEveryTransition() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	_, err := s.svc.Applications.Reject(s.ctx, s.admin.ID, app.ID, &ReasonRequest{Reason: "not licensed in state"})
	s.Require().NoError(err)

	var terminal *TerminalStateError
	_, err = s.svc.Applications.Claim(s.ctx, s.admin.ID, app.ID)
	s.ErrorAs(err, &terminal)
	_, err = s.svc.Applications.RequestInfo(s.ctx, s.admin.ID, app.ID, &ReasonRequest{Reason: "again"})
	s.ErrorAs(err, &terminal)
	_, _, err = s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	s.ErrorAs(err, &terminal)
	_, err = s.svc.Applications.Reject(s.ctx, s.admin.ID, app.ID, &ReasonRequest{Reason: "again"})
	s.ErrorAs(err, &terminal)
	_, err = s.svc.Documents.SubmitDocument(s.ctx, uuid.Nil, app.ID, &SubmitDocumentRequest{Kind: "license", BlobRef: "documents/late"})
	s.ErrorAs(err, &terminal)

	current, err := s.svc.Applications.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusRejected, current.Status)
	s.Len(s.communications(app.ID, KindRejected), 1)
}

func (s *ApplicationTestSuite) TestConcurrentApproveHasOneWinner() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	s.approveDocument(app.ID, "license")
	s.approveDocument(app.ID, "insurance")

	// Both approvers read the application before either writes.
	var arrived sync.WaitGroup
	arrived.Add(2)
	racing := s.container(&barrierStore{Store: s.store, arrived: &arrived})

	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range errs {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			_, _, errs[i] = racing.Applications.Approve(s.ctx, s.admin.ID, app.ID)
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

	providers, total, err := s.store.ListProviders(s.ctx, store.ProviderFilter{})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(app.ID, providers[0].ApplicationID)
	s.Len(s.communications(app.ID, KindApproved), 1)
}

func (s *ApplicationTestSuite) TestCommunicationFailureDoesNotBlockApproval() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	s.approveDocument(app.ID, "license")
	s.approveDocument(app.ID, "insurance")

	s.notifier.setErr(errNotifierDown)
	approved, _, err := s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusApproved, approved.Status)

	comms := s.communications(app.ID, KindApproved)
	s.Require().Len(comms, 1)
	s.Equal(models.CommunicationStatusFailed, comms[0].Status)
	s.Contains(comms[0].LastError, "notifier down")

	// Still inside the backoff window.
	delivered, err := s.svc.Communications.RetryFailed(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, delivered)

	s.notifier.setErr(nil)
	s.clock.Advance(2 * s.cfg.Communications.RetryBackoff)
	delivered, err = s.svc.Communications.RetryFailed(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, delivered)

	comm, err := s.svc.Communications.Get(s.ctx, comms[0].ID)
	s.Require().NoError(err)
	s.Equal(models.CommunicationStatusSent, comm.Status)
	s.NotNil(comm.SentAt)
	s.Len(s.communications(app.ID, KindApproved), 1)
}

func (s *ApplicationTestSuite) TestReconcileApprovalsCreatesMissingProvider() {
	app := &models.Application{
		Type:      models.ApplicationTypeCNA,
		FirstName: "Lee",
		LastName:  "Park",
		Email:     "lee.park@example.com",
		Status:    models.ApplicationStatusApproved,
	}
	s.Require().NoError(s.store.CreateApplication(s.ctx, app))

	created, err := s.svc.Applications.ReconcileApprovals(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, created)

	provider, err := s.store.FindProviderByApplication(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationTypeCNA, provider.Type)

	created, err = s.svc.Applications.ReconcileApprovals(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, created)
}

func (s *ApplicationTestSuite) TestUploadDocument() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	pdf := []byte("%PDF-1.7 test document")

	doc, err := s.svc.Documents.UploadDocument(s.ctx, uuid.Nil, app.ID, "license", pdf)
	s.Require().NoError(err)
	s.Equal("application/pdf", doc.ContentType)
	s.EqualValues(len(pdf), doc.SizeBytes)

	_, content, err := s.svc.Documents.DocumentContent(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(pdf, content)

	_, err = s.svc.Documents.UploadDocument(s.ctx, uuid.Nil, app.ID, "insurance", []byte("plain text"))
	var invalid *ValidationError
	s.ErrorAs(err, &invalid)

	s.blobs.err = errors.New("bucket unreachable")
	_, err = s.svc.Documents.UploadDocument(s.ctx, uuid.Nil, app.ID, "insurance", pdf)
	var upstream *UpstreamUnavailableError
	s.Require().ErrorAs(err, &upstream)

	_, err = s.store.FindDocument(s.ctx, app.ID, "insurance")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *ApplicationTestSuite) TestDocumentReplacementRacingApprovalIsRefused() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	s.approveDocument(app.ID, "license")
	s.approveDocument(app.ID, "insurance")

	// Approval commits after the replacement started but before its write.
	hooked := &hookStore{Store: s.store, before: func() {
		_, _, err := s.svc.Applications.Approve(s.ctx, s.admin.ID, app.ID)
		s.Require().NoError(err)
	}}
	racing := s.container(hooked)

	_, err := racing.Documents.SubmitDocument(s.ctx, uuid.Nil, app.ID, &SubmitDocumentRequest{
		Kind:    "license",
		BlobRef: "documents/license-renewed",
	})
	var terminal *TerminalStateError
	s.Require().ErrorAs(err, &terminal)
	s.Equal([]string{"application"}, hooked.lockedKinds())

	doc, err := s.store.FindDocument(s.ctx, app.ID, "license")
	s.Require().NoError(err)
	s.Equal(models.DocumentStatusApproved, doc.Status)
	s.Equal("documents/license", doc.BlobRef)
}

func (s *ApplicationTestSuite) TestApproveLocksApplicationBeforeDocuments() {
	app := s.claimedApplication(models.ApplicationTypeNurse)
	s.approveDocument(app.ID, "license")
	s.approveDocument(app.ID, "insurance")

	hooked := &hookStore{Store: s.store}
	_, _, err := s.container(hooked).Applications.Approve(s.ctx, s.admin.ID, app.ID)
	s.Require().NoError(err)
	s.Equal([]string{"application", "documents"}, hooked.lockedKinds())
}

// barrierStore holds every GetApplication call until all expected callers
// have arrived.
type barrierStore struct {
	store.Store
	arrived *sync.WaitGroup
}

func (b *barrierStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, err := b.Store.GetApplication(ctx, id)
	b.arrived.Done()
	b.arrived.Wait()
	return app, err
}
