package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"userapi/internal/events"
	"userapi/internal/platform/metrics"
	"userapi/pkg/apperrors"
	"userapi/pkg/sentinel"
)

// MatchResult is the outcome of a national identity match. Network failures
// are folded into Verified=false with the failure detail recorded, so a flaky
// upstream surfaces as a validation rejection rather than a crash.
type MatchResult struct {
	Verified bool
	// Response is the serialized upstream response, persisted on the user.
	Response string
	// Detail is the upstream payload returned to the caller on rejection.
	Detail string
}

// IdentityMatcher cross-checks a national code against a mobile number
// (the Shahkar service).
type IdentityMatcher interface {
	Match(ctx context.Context, nationalCode, mobile string) MatchResult
}

// Service owns the user lifecycle. Every state change is followed by a
// best-effort event emission; persistence and notification are separate
// steps, never one transaction.
type Service struct {
	store     Store
	publisher events.Publisher
	otp       *OTPIssuer
	matcher   IdentityMatcher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(store Store, publisher events.Publisher, otp *OTPIssuer, matcher IdentityMatcher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		otp:       otp,
		matcher:   matcher,
		metrics:   m,
		logger:    logger,
	}
}

// SignupInput carries self-service registration fields.
type SignupInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	NationalCode string
	Mobile       string
}

// Signup registers a new user after the identity match succeeds.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	if err := ValidateBusinessEmail(in.Email); err != nil {
		return nil, err
	}
	if err := ValidateNationalCode(in.NationalCode); err != nil {
		return nil, err
	}
	if err := ValidateMobile(in.Mobile, true); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperrors.Validation("password", "This field may not be blank.")
	}
	if _, err := s.store.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.New(apperrors.CodeConflict, "User already exists.")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	match := s.matcher.Match(ctx, in.NationalCode, in.Mobile)
	if !match.Verified {
		return nil, apperrors.Validation("national_code", match.Detail)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user := &User{
		ID:                uuid.New(),
		Email:             in.Email,
		PasswordHash:      hash,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		NationalCode:      in.NationalCode,
		Mobile:            in.Mobile,
		ShahkarVerified:   true,
		ShahkarVerifiedAt: &now,
		ShahkarResponse:   match.Response,
		Roles:             []string{},
		AccessList:        []string{},
		IsActive:          true,
	}
	return s.create(ctx, user)
}

// CreateInput carries admin-created account fields.
type CreateInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Mobile     string
	IsActive   bool
	IsStaff    bool
	Roles      []string
	AccessList []string
}

// Create registers a user on behalf of an admin; no identity match is run.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	if err := ValidateBusinessEmail(in.Email); err != nil {
		return nil, err
	}
	if _, err := s.store.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.New(apperrors.CodeConflict, "User already exists.")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	user := &User{
		ID:         uuid.New(),
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Mobile:     in.Mobile,
		Roles:      in.Roles,
		AccessList: in.AccessList,
		IsActive:   in.IsActive,
		IsStaff:    in.IsStaff,
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	if user.AccessList == nil {
		user.AccessList = []string{}
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	return s.create(ctx, user)
}

func (s *Service) create(ctx context.Context, user *User) (*User, error) {
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, apperrors.New(apperrors.CodeConflict, "User already exists.")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
	s.publisher.Publish(ctx, events.New(events.UserCreated, user.ID.String(), user))
	return user, nil
}

// UpdateInput holds optional profile changes; nil fields are left untouched.
type UpdateInput struct {
	FirstName     *string
	LastName      *string
	PostalCode    *string
	PostalAddress *string
	IsActive      *bool
	IsStaff       *bool
	Roles         []string
	AccessList    []string
	Password      *string
}

// Update applies profile changes and emits UserUpdated.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.PostalCode != nil {
		if err := ValidatePostalCode(*in.PostalCode); err != nil {
			return nil, err
		}
		user.PostalCode = *in.PostalCode
	}
	if in.PostalAddress != nil {
		user.PostalAddress = *in.PostalAddress
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.IsStaff != nil {
		user.IsStaff = *in.IsStaff
	}
	if in.Roles != nil {
		user.Roles = in.Roles
	}
	if in.AccessList != nil {
		user.AccessList = in.AccessList
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	return s.saveAndNotify(ctx, user)
}

func (s *Service) saveAndNotify(ctx context.Context, user *User) (*User, error) {
	if err := s.store.Update(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "User not found.")
		}
		return nil, err
	}
	s.publisher.Publish(ctx, events.New(events.UserUpdated, user.ID.String(), user))
	return user, nil
}

// Delete removes the user and announces the deletion.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "User not found.")
		}
		return err
	}
	s.publisher.Publish(ctx, events.New(events.UserDeleted, id.String(), map[string]string{"id": id.String()}))
	return nil
}

// Get loads one user.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "User not found.")
		}
		return nil, err
	}
	return user, nil
}

// List returns users matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*User, error) {
	return s.store.List(ctx, filter)
}

// Authenticate resolves credentials to a user. Lookup is by email with a
// username fallback, mirroring the secondary login field.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := s.store.GetByEmail(ctx, login)
	if errors.Is(err, sentinel.ErrNotFound) {
		user, err = s.store.GetByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "Invalid credentials.")
		}
		return nil, err
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "Invalid credentials.")
	}
	return user, nil
}

// ChangePassword verifies the current password before setting a new one.
// Password changes are not announced as UserUpdated.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, newPassword string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, current) {
		return apperrors.Validation("current_password", "Wrong password.")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.store.Update(ctx, user)
}

// ChangeUsername sets the secondary login field.
func (s *Service) ChangeUsername(ctx context.Context, id uuid.UUID, username string) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Username = username
	if err := s.store.Update(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, apperrors.Validation("username", "This username is already taken.")
		}
		return nil, err
	}
	return user, nil
}

// UsernameAvailable reports whether a username is free.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, sentinel.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

type otpPayload struct {
	ID               string `json:"id"`
	Email            string `json:"email,omitempty"`
	Mobile           string `json:"mobile,omitempty"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	VerificationCode string `json:"verification_code"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// RequestEmailVerification issues a code and announces it for the mail
// pipeline to deliver.
func (s *Service) RequestEmailVerification(ctx context.Context, id uuid.UUID) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	code, expiry, err := s.otp.IssueEmail(ctx, user)
	if err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.New(events.EmailVerificationRequested, user.ID.String(), otpPayload{
		ID:               user.ID.String(),
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		VerificationCode: code,
		ExpiresInMinutes: expiry,
	}))
	return nil
}

// VerifyEmail consumes the outstanding code and flips the email verified
// flag.
func (s *Service) VerifyEmail(ctx context.Context, id uuid.UUID, code string) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.otp.VerifyEmail(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Validation("code", "Invalid or expired verification code.")
	}
	now := time.Now()
	user.EmailVerified = true
	user.EmailVerifiedAt = &now
	return s.saveAndNotify(ctx, user)
}

// RequestMobileVerification issues a code and announces it for SMS delivery.
func (s *Service) RequestMobileVerification(ctx context.Context, id uuid.UUID) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Mobile == "" {
		return apperrors.Validation("mobile", "No mobile number on record.")
	}
	code, expiry, err := s.otp.IssueMobile(ctx, user)
	if err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.New(events.MobileVerificationRequested, user.ID.String(), otpPayload{
		ID:               user.ID.String(),
		Mobile:           user.Mobile,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		VerificationCode: code,
		ExpiresInMinutes: expiry,
	}))
	return nil
}

// VerifyMobile consumes the outstanding code and flips the mobile verified
// flag.
func (s *Service) VerifyMobile(ctx context.Context, id uuid.UUID, code string) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.otp.VerifyMobile(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Validation("code", "Invalid or expired verification code.")
	}
	now := time.Now()
	user.MobileVerified = true
	user.MobileVerifiedAt = &now
	return s.saveAndNotify(ctx, user)
}

// UpdateNationalCodeAndMobile re-runs the identity match before storing the
// new pair.
func (s *Service) UpdateNationalCodeAndMobile(ctx context.Context, id uuid.UUID, nationalCode, mobile string) (*User, error) {
	if err := ValidateNationalCode(nationalCode); err != nil {
		return nil, err
	}
	if err := ValidateMobile(mobile, true); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	match := s.matcher.Match(ctx, nationalCode, mobile)
	if !match.Verified {
		return nil, apperrors.Validation("national_code", match.Detail)
	}
	now := time.Now()
	user.NationalCode = nationalCode
	user.Mobile = mobile
	user.MobileVerified = false
	user.MobileVerifiedAt = nil
	user.ShahkarVerified = true
	user.ShahkarVerifiedAt = &now
	user.ShahkarResponse = match.Response
	return s.saveAndNotify(ctx, user)
}

// RequestPasswordReset issues a code keyed to the account email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Do not leak account existence; the caller sees success either way.
			return nil
		}
		return err
	}
	code, expiry, err := s.otp.IssueEmail(ctx, user)
	if err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.New(events.PasswordResetRequested, user.ID.String(), otpPayload{
		ID:               user.ID.String(),
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		VerificationCode: code,
		ExpiresInMinutes: expiry,
	}))
	return nil
}

// ConfirmPasswordReset consumes the reset code and stores the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return apperrors.Validation("code", "Invalid or expired verification code.")
		}
		return err
	}
	ok, err := s.otp.VerifyEmail(ctx, user, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Validation("code", "Invalid or expired verification code.")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.store.Update(ctx, user)
}

// UpdateAvatar records the stored avatar path.
func (s *Service) UpdateAvatar(ctx context.Context, id uuid.UUID, path string) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user.AvatarPath = path
	user.AvatarUpdatedAt = &now
	return s.saveAndNotify(ctx, user)
}

// DeleteAvatar clears the avatar reference; the caller removes the file.
func (s *Service) DeleteAvatar(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user.AvatarPath = ""
	user.AvatarUpdatedAt = &now
	return s.saveAndNotify(ctx, user)
}
