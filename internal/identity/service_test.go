package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"userapi/internal/events"
	"userapi/internal/platform/cache"
	"userapi/pkg/apperrors"
)

type stubMatcher struct {
	verified bool
	detail   string
	calls    int
}

func (m *stubMatcher) Match(_ context.Context, _, _ string) MatchResult {
	m.calls++
	return MatchResult{Verified: m.verified, Response: `{"result":{"data":{"result":200}}}`, Detail: m.detail}
}

type ServiceSuite struct {
	suite.Suite
	store    *InMemoryStore
	recorder *events.Recorder
	matcher  *stubMatcher
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = NewInMemoryStore()
	s.recorder = events.NewRecorder()
	s.matcher = &stubMatcher{verified: true}
	otp := NewOTPIssuer(cache.NewMemory(), 6, 10*time.Minute, false, logger)
	s.service = NewService(s.store, s.recorder, otp, s.matcher, nil, logger)
}

func (s *ServiceSuite) signup() *User {
	user, err := s.service.Signup(context.Background(), SignupInput{
		Email:        "reza@acme.example",
		Password:     "s3cret-pass",
		FirstName:    "Reza",
		LastName:     "Karimi",
		NationalCode: "0013542419",
		Mobile:       "09121234567",
	})
	s.Require().NoError(err)
	return user
}

// lastPayload returns the otpPayload of the most recent event with the given
// name.
func (s *ServiceSuite) lastPayload(name events.Name) otpPayload {
	recorded := s.recorder.Events()
	for i := len(recorded) - 1; i >= 0; i-- {
		if recorded[i].Name == name {
			payload, ok := recorded[i].Data.(otpPayload)
			s.Require().True(ok)
			return payload
		}
	}
	s.Require().FailNow("event not recorded", string(name))
	return otpPayload{}
}

func (s *ServiceSuite) TestSignup() {
	ctx := context.Background()

	s.Run("creates a matched user", func() {
		user := s.signup()
		s.True(user.ShahkarVerified)
		s.NotNil(user.ShahkarVerifiedAt)
		s.NotEmpty(user.ShahkarResponse)
		s.True(user.IsActive)
		s.False(user.IsStaff)
		s.NotEqual("s3cret-pass", user.PasswordHash)
		s.Equal([]events.Name{events.UserCreated}, s.recorder.Names())
		s.Equal(user.ID.String(), s.recorder.Events()[0].Key)
	})

	s.Run("rejects free-mail addresses", func() {
		_, err := s.service.Signup(ctx, SignupInput{
			Email: "reza@gmail.com", Password: "x", NationalCode: "0013542419", Mobile: "09121234567",
		})
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})

	s.Run("rejects a bad national code checksum", func() {
		_, err := s.service.Signup(ctx, SignupInput{
			Email: "a@acme.example", Password: "x", NationalCode: "0013542410", Mobile: "09121234567",
		})
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})

	s.Run("rejects a duplicate email", func() {
		_, err := s.service.Signup(ctx, SignupInput{
			Email: "reza@acme.example", Password: "x", NationalCode: "1234567891", Mobile: "09121234567",
		})
		s.Require().Error(err)
		s.Equal(apperrors.CodeConflict, apperrors.CodeOf(err))
	})

	s.Run("rejects when the identity match fails", func() {
		s.matcher.verified = false
		s.matcher.detail = "national code and mobile do not match"
		_, err := s.service.Signup(ctx, SignupInput{
			Email: "other@acme.example", Password: "x", NationalCode: "1234567891", Mobile: "09121234567",
		})
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestCreateAndUpdate() {
	ctx := context.Background()

	user, err := s.service.Create(ctx, CreateInput{
		Email:      "staff@acme.example",
		Password:   "staff-pass",
		FirstName:  "Sara",
		IsActive:   true,
		IsStaff:    true,
		Roles:      []string{RoleVerificationsAccountable},
		AccessList: []string{PermViewUsers},
	})
	s.Require().NoError(err)
	s.Zero(s.matcher.calls)
	s.True(user.IsStaff)
	s.True(user.HasCapability(RoleVerificationsAccountable))

	first := "Sarah"
	updated, err := s.service.Update(ctx, user.ID, UpdateInput{FirstName: &first})
	s.Require().NoError(err)
	s.Equal("Sarah", updated.FirstName)
	s.Equal([]events.Name{events.UserCreated, events.UserUpdated}, s.recorder.Names())

	stored, err := s.store.GetByID(ctx, user.ID)
	s.Require().NoError(err)
	s.Equal("Sarah", stored.FirstName)
}

func (s *ServiceSuite) TestDelete() {
	user := s.signup()
	s.recorder.Reset()

	s.Require().NoError(s.service.Delete(context.Background(), user.ID))
	s.Equal([]events.Name{events.UserDeleted}, s.recorder.Names())

	err := s.service.Delete(context.Background(), user.ID)
	s.Require().Error(err)
	s.Equal(apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func (s *ServiceSuite) TestAuthenticate() {
	ctx := context.Background()
	user := s.signup()

	s.Run("by email", func() {
		got, err := s.service.Authenticate(ctx, "reza@acme.example", "s3cret-pass")
		s.Require().NoError(err)
		s.Equal(user.ID, got.ID)
	})

	s.Run("by username fallback", func() {
		_, err := s.service.ChangeUsername(ctx, user.ID, "reza")
		s.Require().NoError(err)
		got, err := s.service.Authenticate(ctx, "reza", "s3cret-pass")
		s.Require().NoError(err)
		s.Equal(user.ID, got.ID)
	})

	s.Run("wrong password", func() {
		_, err := s.service.Authenticate(ctx, "reza@acme.example", "nope")
		s.Require().Error(err)
		s.Equal(apperrors.CodeUnauthorized, apperrors.CodeOf(err))
	})

	s.Run("inactive account", func() {
		inactive := false
		_, err := s.service.Update(ctx, user.ID, UpdateInput{IsActive: &inactive})
		s.Require().NoError(err)
		_, err = s.service.Authenticate(ctx, "reza@acme.example", "s3cret-pass")
		s.Require().Error(err)
		s.Equal(apperrors.CodeUnauthorized, apperrors.CodeOf(err))
	})

	s.Run("unknown login", func() {
		_, err := s.service.Authenticate(ctx, "nobody@acme.example", "s3cret-pass")
		s.Require().Error(err)
		s.Equal(apperrors.CodeUnauthorized, apperrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestChangePassword() {
	ctx := context.Background()
	user := s.signup()

	err := s.service.ChangePassword(ctx, user.ID, "wrong", "new-pass")
	s.Require().Error(err)
	s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))

	s.Require().NoError(s.service.ChangePassword(ctx, user.ID, "s3cret-pass", "new-pass"))
	_, err = s.service.Authenticate(ctx, "reza@acme.example", "new-pass")
	s.Require().NoError(err)

	// No UserUpdated announcement for credential changes.
	s.Equal([]events.Name{events.UserCreated}, s.recorder.Names())
}

func (s *ServiceSuite) TestEmailVerification() {
	ctx := context.Background()
	user := s.signup()

	s.Require().NoError(s.service.RequestEmailVerification(ctx, user.ID))
	payload := s.lastPayload(events.EmailVerificationRequested)
	s.Equal(user.Email, payload.Email)
	s.Len(payload.VerificationCode, 6)
	s.Equal(10, payload.ExpiresInMinutes)

	s.Run("wrong code is rejected", func() {
		_, err := s.service.VerifyEmail(ctx, user.ID, "000000")
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})

	s.Run("right code flips the flag", func() {
		verified, err := s.service.VerifyEmail(ctx, user.ID, payload.VerificationCode)
		s.Require().NoError(err)
		s.True(verified.EmailVerified)
		s.NotNil(verified.EmailVerifiedAt)
		s.Contains(s.recorder.Names(), events.UserUpdated)
	})

	s.Run("codes are single use", func() {
		_, err := s.service.VerifyEmail(ctx, user.ID, payload.VerificationCode)
		s.Require().Error(err)
		s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestMobileVerification() {
	ctx := context.Background()
	user := s.signup()

	s.Require().NoError(s.service.RequestMobileVerification(ctx, user.ID))
	payload := s.lastPayload(events.MobileVerificationRequested)
	s.Equal(user.Mobile, payload.Mobile)

	verified, err := s.service.VerifyMobile(ctx, user.ID, payload.VerificationCode)
	s.Require().NoError(err)
	s.True(verified.MobileVerified)
}

func (s *ServiceSuite) TestPasswordReset() {
	ctx := context.Background()
	s.signup()
	s.recorder.Reset()

	s.Run("unknown email succeeds silently", func() {
		s.Require().NoError(s.service.RequestPasswordReset(ctx, "nobody@acme.example"))
		s.Empty(s.recorder.Events())
	})

	s.Run("reset with the issued code", func() {
		s.Require().NoError(s.service.RequestPasswordReset(ctx, "reza@acme.example"))
		payload := s.lastPayload(events.PasswordResetRequested)

		err := s.service.ConfirmPasswordReset(ctx, "reza@acme.example", "000000", "reset-pass")
		s.Require().Error(err)

		s.Require().NoError(s.service.ConfirmPasswordReset(ctx, "reza@acme.example", payload.VerificationCode, "reset-pass"))
		_, err = s.service.Authenticate(ctx, "reza@acme.example", "reset-pass")
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestUpdateNationalCodeAndMobile() {
	ctx := context.Background()
	user := s.signup()

	// Start from a verified mobile so the reset is observable.
	s.Require().NoError(s.service.RequestMobileVerification(ctx, user.ID))
	payload := s.lastPayload(events.MobileVerificationRequested)
	_, err := s.service.VerifyMobile(ctx, user.ID, payload.VerificationCode)
	s.Require().NoError(err)

	updated, err := s.service.UpdateNationalCodeAndMobile(ctx, user.ID, "1234567891", "09351112233")
	s.Require().NoError(err)
	s.Equal("1234567891", updated.NationalCode)
	s.Equal("09351112233", updated.Mobile)
	s.False(updated.MobileVerified)
	s.Nil(updated.MobileVerifiedAt)
	s.True(updated.ShahkarVerified)
}

func (s *ServiceSuite) TestUsernames() {
	ctx := context.Background()
	user := s.signup()

	free, err := s.service.UsernameAvailable(ctx, "reza")
	s.Require().NoError(err)
	s.True(free)

	_, err = s.service.ChangeUsername(ctx, user.ID, "reza")
	s.Require().NoError(err)

	free, err = s.service.UsernameAvailable(ctx, "reza")
	s.Require().NoError(err)
	s.False(free)

	other, err := s.service.Create(ctx, CreateInput{Email: "other@acme.example", IsActive: true})
	s.Require().NoError(err)
	_, err = s.service.ChangeUsername(ctx, other.ID, "reza")
	s.Require().Error(err)
	s.Equal(apperrors.CodeValidation, apperrors.CodeOf(err))
}

func (s *ServiceSuite) TestAvatar() {
	ctx := context.Background()
	user := s.signup()

	updated, err := s.service.UpdateAvatar(ctx, user.ID, "avatars/"+user.ID.String()+".png")
	s.Require().NoError(err)
	s.NotEmpty(updated.AvatarPath)
	s.NotNil(updated.AvatarUpdatedAt)

	cleared, err := s.service.DeleteAvatar(ctx, user.ID)
	s.Require().NoError(err)
	s.Empty(cleared.AvatarPath)
}
