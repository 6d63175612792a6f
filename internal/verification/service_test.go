package verification

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"userapi/internal/company"
	"userapi/internal/events"
	"userapi/internal/identity"
	"userapi/pkg/apperrors"
)

type ServiceSuite struct {
	suite.Suite
	store     *InMemoryStore
	users     *identity.InMemoryStore
	companies *company.InMemoryStore
	recorder  *events.Recorder
	service   *Service
	assigner  *Assigner
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = NewInMemoryStore()
	s.users = identity.NewInMemoryStore()
	s.companies = company.NewInMemoryStore()
	s.recorder = events.NewRecorder()
	engine := NewEngine(s.store, s.users)
	s.service = NewService(s.store, engine, s.users, s.users, s.companies, s.recorder, nil, logger)
	s.assigner = NewAssigner(s.service, time.Minute, nil, logger)
}

func (s *ServiceSuite) newUser(mutate func(*identity.User)) *identity.User {
	user := &identity.User{
		ID:       uuid.New(),
		Email:    uuid.NewString() + "@acme.example",
		IsActive: true,
	}
	if mutate != nil {
		mutate(user)
	}
	s.Require().NoError(s.users.Create(context.Background(), user))
	return user
}

func (s *ServiceSuite) newStaff() *identity.User {
	return s.newUser(func(u *identity.User) {
		u.IsStaff = true
		u.Roles = []string{identity.RoleVerificationsAccountable}
	})
}

func (s *ServiceSuite) newCompany(owner *identity.User) *company.Company {
	c := &company.Company{UserID: owner.ID, Name: "Acme Trading"}
	s.Require().NoError(s.companies.Upsert(context.Background(), c))
	return c
}

func (s *ServiceSuite) createRequest(subject SubjectRef, userID uuid.UUID) *Request {
	req, err := s.service.Create(context.Background(), subject, userID, "please verify",
		[]Document{{FilePath: "users/docs/card.png", Type: DocNationalIDCard}})
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) TestCreate() {
	ctx := context.Background()
	user := s.newUser(nil)

	s.Run("requires documents", func() {
		_, err := s.service.Create(ctx, UserRef(user.ID), user.ID, "", nil)
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})

	s.Run("rejects unknown document types", func() {
		_, err := s.service.Create(ctx, UserRef(user.ID), user.ID, "",
			[]Document{{FilePath: "x.png", Type: DocumentType(9)}})
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})

	req := s.createRequest(UserRef(user.ID), user.ID)
	s.Equal(StatusSent, req.Status)
	s.Nil(req.AccountableID)
	s.Require().Len(req.Documents, 1)
	s.Equal(user.ID, req.Documents[0].UserID)
	s.Equal("card.png", req.Documents[0].Filename())
	s.Equal([]events.Name{events.VerificationCreated}, s.recorder.Names())

	s.Run("one active request per subject", func() {
		_, err := s.service.Create(ctx, UserRef(user.ID), user.ID, "",
			[]Document{{FilePath: "y.png", Type: DocNationalIDCard}})
		s.Require().Error(err)
		s.Equal(apperrors.CodeBadRequest, apperrors.CodeOf(err))
		s.Require().ErrorIs(err, ErrDuplicateRequest)
	})

	s.Run("resubmission allowed after rejection", func() {
		staff := s.newStaff()
		_, err := s.service.Inspect(ctx, req.ID, StatusRejected, "documents unreadable", staff.ID)
		s.Require().NoError(err)

		again := s.createRequest(UserRef(user.ID), user.ID)
		s.Equal(StatusSent, again.Status)
	})
}

func (s *ServiceSuite) TestAssignLeastLoaded() {
	ctx := context.Background()
	submitterA := s.newUser(nil)
	submitterB := s.newUser(nil)
	submitterC := s.newUser(nil)
	busy := s.newStaff()
	idle := s.newStaff()

	// Load one accountable with two Sent assignments.
	for _, submitter := range []*identity.User{submitterA, submitterB} {
		req := s.createRequest(UserRef(submitter.ID), submitter.ID)
		ok, err := s.store.SetAccountable(ctx, req.ID, busy.ID)
		s.Require().NoError(err)
		s.Require().True(ok)
	}

	req := s.createRequest(UserRef(submitterC.ID), submitterC.ID)
	assigned, err := s.service.Assign(ctx, req.ID, nil)
	s.Require().NoError(err)
	s.Require().NotNil(assigned.AccountableID)
	s.Equal(idle.ID, *assigned.AccountableID)
	s.Contains(s.recorder.Names(), events.VerificationAssigned)
}

func (s *ServiceSuite) TestAssignNoOps() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	staff := s.newStaff()
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)

	_, err := s.service.Assign(ctx, req.ID, staff)
	s.Require().NoError(err)
	s.recorder.Reset()

	s.Run("same accountable again", func() {
		_, err := s.service.Assign(ctx, req.ID, staff)
		s.Require().Error(err)
		s.Equal(apperrors.CodeBadRequest, apperrors.CodeOf(err))
		s.Empty(s.recorder.Events(), "no event for a no-op assignment")
	})

	s.Run("ineligible candidate", func() {
		civilian := s.newUser(nil)
		_, err := s.service.Assign(ctx, req.ID, civilian)
		s.Require().Error(err)
		s.Equal(apperrors.CodeBadRequest, apperrors.CodeOf(err))
	})

	s.Run("terminal request", func() {
		_, err := s.service.Inspect(ctx, req.ID, StatusVerified, "", staff.ID)
		s.Require().NoError(err)

		other := s.newStaff()
		_, err = s.service.Assign(ctx, req.ID, other)
		s.Require().Error(err)
		s.Equal(apperrors.CodeBadRequest, apperrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestAssignExcludesCurrentHolder() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	first := s.newStaff()
	second := s.newStaff()
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)

	assigned, err := s.service.Assign(ctx, req.ID, nil)
	s.Require().NoError(err)
	holder := *assigned.AccountableID

	// Auto-selection never re-picks the current holder, even though the
	// other candidate now carries the higher load.
	reassigned, err := s.service.Assign(ctx, req.ID, nil)
	s.Require().NoError(err)
	s.NotEqual(holder, *reassigned.AccountableID)
	s.Contains([]uuid.UUID{first.ID, second.ID}, *reassigned.AccountableID)
}

func (s *ServiceSuite) TestAssignNoEligibleStaff() {
	submitter := s.newUser(nil)
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)

	_, err := s.service.Assign(context.Background(), req.ID, nil)
	s.Require().Error(err)
	s.Equal(apperrors.CodeBadRequest, apperrors.CodeOf(err))
}

func (s *ServiceSuite) TestInspect() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	staff := s.newStaff()

	s.Run("rejection requires a comment", func() {
		req := s.createRequest(UserRef(submitter.ID), submitter.ID)
		_, err := s.service.Inspect(ctx, req.ID, StatusRejected, "", staff.ID)
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))

		rejected, err := s.service.Inspect(ctx, req.ID, StatusRejected, "missing pages", staff.ID)
		s.Require().NoError(err)
		s.Equal(StatusRejected, rejected.Status)
		s.Equal("missing pages", rejected.AccountableComment)
		s.NotNil(rejected.InspectedAt)
	})

	s.Run("terminal requests cannot be re-inspected", func() {
		req := s.createRequest(UserRef(submitter.ID), submitter.ID)
		_, err := s.service.Inspect(ctx, req.ID, StatusVerified, "", staff.ID)
		s.Require().NoError(err)

		_, err = s.service.Inspect(ctx, req.ID, StatusRejected, "too late", staff.ID)
		s.Require().Error(err)
		s.Require().ErrorIs(err, ErrAlreadyInspected)

		unchanged, err := s.service.Get(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(StatusVerified, unchanged.Status)
	})

	s.Run("unknown status rejected", func() {
		_, err := s.service.Inspect(ctx, 1, StatusSent, "", staff.ID)
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestVerifyUserSubject() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	staff := s.newStaff()
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)

	verified, err := s.service.Inspect(ctx, req.ID, StatusVerified, "all good", staff.ID)
	s.Require().NoError(err)
	s.Equal(StatusVerified, verified.Status)

	user, err := s.users.GetByID(ctx, submitter.ID)
	s.Require().NoError(err)
	s.True(user.IdentityVerified)
	s.Require().NotNil(user.IdentityVerifiedBy)
	s.Equal(staff.ID, *user.IdentityVerifiedBy)

	// The submitter's fresh state is announced after the decision.
	names := s.recorder.Names()
	s.Equal(events.UserUpdated, names[len(names)-1])
}

func (s *ServiceSuite) TestSubjectVerifiedOnlyOnce() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	staff := s.newStaff()

	// Simulate a race where another request already verified the subject.
	changed, err := s.users.MarkIdentityVerified(ctx, submitter.ID, staff.ID, time.Now())
	s.Require().NoError(err)
	s.Require().True(changed)

	req := s.createRequest(UserRef(submitter.ID), submitter.ID)
	_, err = s.service.Inspect(ctx, req.ID, StatusVerified, "", staff.ID)
	s.Require().Error(err)
	s.Require().ErrorIs(err, ErrSubjectAlreadyVerified)
}

func (s *ServiceSuite) TestCompanyEndToEnd() {
	ctx := context.Background()
	owner := s.newUser(nil)
	c := s.newCompany(owner)
	staff := s.newStaff()

	req := s.createRequest(CompanyRef(c.ID), owner.ID)

	// Background sweep assigns the least-loaded accountable.
	s.assigner.sweep(ctx)
	assigned, err := s.service.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().NotNil(assigned.AccountableID)
	s.Equal(staff.ID, *assigned.AccountableID)

	_, err = s.service.Inspect(ctx, req.ID, StatusVerified, "", staff.ID)
	s.Require().NoError(err)

	verified, err := s.companies.GetByID(ctx, c.ID)
	s.Require().NoError(err)
	s.True(verified.Verified)
	s.NotNil(verified.VerifiedAt)

	names := s.recorder.Names()
	s.Require().GreaterOrEqual(len(names), 3)
	s.Equal(events.VerificationCreated, names[0])
	s.Equal(events.VerificationAssigned, names[1])
	s.Equal(events.VerificationInspected, names[2])
}

func (s *ServiceSuite) TestSweepWithoutStaffIsIdempotent() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)
	s.recorder.Reset()

	s.assigner.sweep(ctx)
	s.assigner.sweep(ctx)

	unassigned, err := s.service.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Nil(unassigned.AccountableID)
	s.Empty(s.recorder.Events())

	// Once staff appear, the next sweep picks the request up.
	staff := s.newStaff()
	s.assigner.sweep(ctx)
	assigned, err := s.service.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().NotNil(assigned.AccountableID)
	s.Equal(staff.ID, *assigned.AccountableID)
}

func (s *ServiceSuite) TestAssignables() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)

	holder := s.newUser(func(u *identity.User) {
		u.Email = "holder@acme.example"
		u.IsStaff = true
		u.Roles = []string{identity.RoleVerificationsAccountable}
	})
	s.newUser(func(u *identity.User) {
		u.Email = "candidate@acme.example"
		u.IsStaff = true
		u.Roles = []string{identity.RoleVerificationsAccountable}
	})

	_, err := s.service.Assignables(ctx, req.ID, "")
	s.Require().Error(err)
	s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = s.service.Assign(ctx, req.ID, holder)
	s.Require().NoError(err)

	found, err := s.service.Assignables(ctx, req.ID, "acme")
	s.Require().NoError(err)
	s.Require().Len(found, 1, "current holder is excluded")
	s.Equal("candidate@acme.example", found[0].Email)
}

func (s *ServiceSuite) TestDocumentAccess() {
	ctx := context.Background()
	submitter := s.newUser(nil)
	req := s.createRequest(UserRef(submitter.ID), submitter.ID)
	docID := req.Documents[0].ID

	doc, err := s.service.Document(ctx, docID, submitter)
	s.Require().NoError(err)
	s.Equal(docID, doc.ID)

	staff := s.newStaff()
	_, err = s.service.Document(ctx, docID, staff)
	s.Require().NoError(err)

	stranger := s.newUser(nil)
	_, err = s.service.Document(ctx, docID, stranger)
	s.Require().Error(err)
	s.Equal(apperrors.CodeNotFound, apperrors.CodeOf(err))
}
