package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"userapi/internal/events"
	"userapi/internal/identity"
	"userapi/internal/platform/metrics"
	"userapi/pkg/apperrors"
	"userapi/pkg/sentinel"
)

// UserVerifier is the slice of the user store the inspection flow needs.
type UserVerifier interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	MarkIdentityVerified(ctx context.Context, userID, by uuid.UUID, at time.Time) (bool, error)
}

// CompanyVerifier flips a company's verified flag.
type CompanyVerifier interface {
	MarkVerified(ctx context.Context, id int64, at time.Time) (bool, error)
}

// Service runs the verification request workflow: submission, accountable
// assignment and inspection. Every successful state change is followed by a
// best-effort event emission.
type Service struct {
	store     Store
	engine    *Engine
	directory StaffDirectory
	users     UserVerifier
	companies CompanyVerifier
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewService(
	store Store,
	engine *Engine,
	directory StaffDirectory,
	users UserVerifier,
	companies CompanyVerifier,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		directory: directory,
		users:     users,
		companies: companies,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("userapi/verification"),
	}
}

func requestKey(req *Request) string {
	return strconv.FormatInt(req.ID, 10)
}

// Create submits a verification request with its documents in one atomic
// write. At least one document is required.
func (s *Service) Create(ctx context.Context, subject SubjectRef, userID uuid.UUID, userComment string, docs []Document) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Create",
		trace.WithAttributes(attribute.String("subject.kind", string(subject.Kind))))
	defer span.End()

	if len(docs) == 0 {
		return nil, apperrors.Validation("documents", "No documents.")
	}
	for i := range docs {
		if !docs[i].Type.Valid() {
			return nil, apperrors.Validation("documents", "Unknown document type.")
		}
		docs[i].UserID = userID
	}

	req := &Request{
		Subject:     subject,
		UserID:      userID,
		Status:      StatusSent,
		UserComment: userComment,
		Documents:   docs,
	}
	if err := s.store.Create(ctx, req); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return nil, apperrors.Wrap(err, apperrors.CodeBadRequest,
				"An active verification request already exists for this subject.")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.VerificationsCreated.Inc()
	}
	s.publisher.Publish(ctx, events.New(events.VerificationCreated, requestKey(req), req))
	return req, nil
}

// Get loads one request.
func (s *Service) Get(ctx context.Context, id int64) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Verification request not found.")
		}
		return nil, err
	}
	return req, nil
}

// List returns requests matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Request, error) {
	return s.store.List(ctx, filter)
}

// Assignables searches the eligible accountables for the assignment picker,
// excluding the request's current holder.
func (s *Service) Assignables(ctx context.Context, id int64, search string) ([]*identity.User, error) {
	if search == "" {
		return nil, apperrors.Validation("search", "This url param is required.")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.directory.SearchAccountables(ctx, search, req.AccountableID)
}

// Assign hands the request to candidate, or auto-selects the least-loaded
// eligible accountable when candidate is nil. A no-op assignment is reported
// as a bad request so the caller can tell nothing changed.
func (s *Service) Assign(ctx context.Context, id int64, candidate *identity.User) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Assign",
		trace.WithAttributes(attribute.Int64("request.id", id)))
	defer span.End()

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	assigned, err := s.engine.Assign(ctx, req, candidate)
	if err != nil {
		return nil, err
	}
	if assigned == nil {
		return nil, apperrors.New(apperrors.CodeBadRequest,
			"No one new was assigned. This may be because no accountable exists, "+
				"or the request is already rejected or verified. And also make sure "+
				"you are not already accountable to this request.")
	}
	req, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.VerificationsAssigned.Inc()
	}
	s.publisher.Publish(ctx, events.New(events.VerificationAssigned, requestKey(req), req))
	return req, nil
}

// Inspect records a staff decision. Rejections require a comment; a Verified
// decision additionally flips the subject's verified flag, guarded so it can
// only ever flip once.
func (s *Service) Inspect(ctx context.Context, id int64, newStatus Status, comment string, by uuid.UUID) (*Request, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Inspect",
		trace.WithAttributes(
			attribute.Int64("request.id", id),
			attribute.String("status", newStatus.String()),
		))
	defer span.End()

	if newStatus != StatusInspecting && !newStatus.Terminal() {
		return nil, apperrors.Validation("status", "Unknown inspection status.")
	}
	if newStatus == StatusRejected && comment == "" {
		return nil, apperrors.Validation("accountable_comment",
			"This field may not be empty, when status is REJECTED.")
	}

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.store.MarkInspected(ctx, id, newStatus, comment, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Wrap(ErrAlreadyInspected, apperrors.CodeBadRequest, "Request already inspected")
	}

	req, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if newStatus == StatusVerified {
		if err := s.markSubjectVerified(ctx, req, by, now); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.VerificationsDecided.WithLabelValues(statusOutcome(newStatus)).Inc()
	}
	s.publisher.Publish(ctx, events.New(events.VerificationInspected, requestKey(req), req))

	if newStatus == StatusVerified {
		s.announceSubjectUser(ctx, req)
	}
	return req, nil
}

// markSubjectVerified resolves the polymorphic subject and flips its verified
// flag with a conditional write. Two requests racing to verify the same
// subject cannot both win.
func (s *Service) markSubjectVerified(ctx context.Context, req *Request, by uuid.UUID, at time.Time) error {
	alreadyVerified := apperrors.Wrap(ErrSubjectAlreadyVerified, apperrors.CodeBadRequest, "User already verified")
	switch req.Subject.Kind {
	case SubjectUser:
		userID, err := req.Subject.UserID()
		if err != nil {
			return err
		}
		ok, err := s.users.MarkIdentityVerified(ctx, userID, by, at)
		if err != nil {
			return fmt.Errorf("mark user verified: %w", err)
		}
		if !ok {
			return alreadyVerified
		}
	case SubjectCompany:
		companyID, err := req.Subject.CompanyID()
		if err != nil {
			return err
		}
		ok, err := s.companies.MarkVerified(ctx, companyID, at)
		if err != nil {
			return fmt.Errorf("mark company verified: %w", err)
		}
		if !ok {
			return alreadyVerified
		}
	default:
		return fmt.Errorf("unknown subject kind %q", req.Subject.Kind)
	}
	return nil
}

// announceSubjectUser publishes the submitting user's fresh state after a
// verification, so downstream consumers see the flipped flag.
func (s *Service) announceSubjectUser(ctx context.Context, req *Request) {
	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		s.logger.Error("load user after verification", "user_id", req.UserID, "error", err)
		return
	}
	s.publisher.Publish(ctx, events.New(events.UserUpdated, user.ID.String(), user))
}

func statusOutcome(status Status) string {
	switch status {
	case StatusVerified:
		return "verified"
	case StatusRejected:
		return "rejected"
	default:
		return "inspecting"
	}
}

// Document returns a stored document for download, enforcing ownership: the
// submitter or any accountable-capable staff member may fetch it.
func (s *Service) Document(ctx context.Context, id int64, requester *identity.User) (*Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Document not found.")
		}
		return nil, err
	}
	if doc.UserID != requester.ID && !requester.HasCapability(identity.RoleVerificationsAccountable) {
		return nil, apperrors.New(apperrors.CodeNotFound, "Document not found.")
	}
	return doc, nil
}
