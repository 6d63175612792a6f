package company

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"userapi/internal/identity"
	"userapi/pkg/apperrors"
	"userapi/pkg/sentinel"
)

// Service owns the company profile attached to a user. Profiles are created
// lazily on first update; reads of a missing profile return an empty one.
type Service struct {
	store   Store
	otp     *identity.OTPIssuer
	matcher identity.IdentityMatcher
	logger  *slog.Logger
}

func NewService(store Store, otp *identity.OTPIssuer, matcher identity.IdentityMatcher, logger *slog.Logger) *Service {
	return &Service{store: store, otp: otp, matcher: matcher, logger: logger}
}

// GetForUser returns the user's company, or a blank profile when none has
// been saved yet.
func (s *Service) GetForUser(ctx context.Context, userID uuid.UUID) (*Company, error) {
	c, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &Company{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID loads one company for the admin surface.
func (s *Service) GetByID(ctx context.Context, id int64) (*Company, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Company not found.")
		}
		return nil, err
	}
	return c, nil
}

// List pages through companies for the admin surface.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Company, error) {
	return s.store.List(ctx, limit, offset)
}

// UpsertInput holds partial profile changes; nil fields are left untouched.
type UpsertInput struct {
	Name             *string
	NationalCode     *string
	RegistryCode     *string
	EconomicalNumber *string
	Phone            *string
	PostalCode       *string
	PostalAddress    *string
	Size             *int
	ActivityField    *string
	CEOMobile        *string
	CEONationalCode  *string
}

// Upsert creates or updates the user's company profile. Changing the CEO
// mobile or national code resets the matching CEO verification state.
func (s *Service) Upsert(ctx context.Context, userID uuid.UUID, in UpsertInput) (*Company, error) {
	c, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.NationalCode != nil {
		c.NationalCode = *in.NationalCode
	}
	if in.RegistryCode != nil {
		c.RegistryCode = *in.RegistryCode
	}
	if in.EconomicalNumber != nil {
		c.EconomicalNumber = *in.EconomicalNumber
	}
	if in.Phone != nil {
		if err := identity.ValidatePhone(*in.Phone); err != nil {
			return nil, err
		}
		c.Phone = *in.Phone
	}
	if in.PostalCode != nil {
		if err := identity.ValidatePostalCode(*in.PostalCode); err != nil {
			return nil, err
		}
		c.PostalCode = *in.PostalCode
	}
	if in.PostalAddress != nil {
		c.PostalAddress = *in.PostalAddress
	}
	if in.Size != nil {
		if *in.Size < 0 {
			return nil, apperrors.Validation("size", "Must be a positive number.")
		}
		c.Size = in.Size
	}
	if in.ActivityField != nil {
		c.ActivityField = *in.ActivityField
	}
	if in.CEOMobile != nil && *in.CEOMobile != c.CEOMobile {
		if err := identity.ValidateMobile(*in.CEOMobile, true); err != nil {
			return nil, err
		}
		c.CEOMobile = *in.CEOMobile
		c.CEOMobileVerified = false
		c.CEOMobileVerifiedAt = nil
	}
	if in.CEONationalCode != nil && *in.CEONationalCode != c.CEONationalCode {
		if err := identity.ValidateNationalCode(*in.CEONationalCode); err != nil {
			return nil, err
		}
		c.CEONationalCode = *in.CEONationalCode
		c.CEOShahkarVerified = false
		c.CEOShahkarVerifiedAt = nil
		c.CEOShahkarResponse = ""
	}
	if err := s.store.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func ceoMobileKey(c *Company) string {
	return fmt.Sprintf("ceomobile.verify.token.%d.%s", c.ID, c.CEOMobile)
}

// RequestCEOMobileVerification issues a code for the CEO mobile number.
func (s *Service) RequestCEOMobileVerification(ctx context.Context, userID uuid.UUID) error {
	c, err := s.existing(ctx, userID)
	if err != nil {
		return err
	}
	if c.CEOMobile == "" {
		return apperrors.Validation("ceo_mobile", "No CEO mobile number on record.")
	}
	_, _, err = s.otp.IssueForKey(ctx, ceoMobileKey(c), "ceo mobile "+c.CEOMobile)
	return err
}

// VerifyCEOMobile consumes the outstanding code and flips the CEO mobile
// verified flag.
func (s *Service) VerifyCEOMobile(ctx context.Context, userID uuid.UUID, code string) (*Company, error) {
	c, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.otp.VerifyForKey(ctx, ceoMobileKey(c), code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Validation("code", "Invalid or expired verification code.")
	}
	now := time.Now()
	c.CEOMobileVerified = true
	c.CEOMobileVerifiedAt = &now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyCEOShahkar cross-checks the CEO national code against the CEO mobile
// and records the outcome on the company.
func (s *Service) VerifyCEOShahkar(ctx context.Context, userID uuid.UUID, nationalCode, mobile string) (*Company, error) {
	if err := identity.ValidateNationalCode(nationalCode); err != nil {
		return nil, err
	}
	if err := identity.ValidateMobile(mobile, true); err != nil {
		return nil, err
	}
	c, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}
	match := s.matcher.Match(ctx, nationalCode, mobile)
	if !match.Verified {
		return nil, apperrors.Validation("ceo_national_code", match.Detail)
	}
	now := time.Now()
	if mobile != c.CEOMobile {
		c.CEOMobile = mobile
		c.CEOMobileVerified = false
		c.CEOMobileVerifiedAt = nil
	}
	c.CEONationalCode = nationalCode
	c.CEOShahkarVerified = true
	c.CEOShahkarVerifiedAt = &now
	c.CEOShahkarResponse = match.Response
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// existing loads the user's saved company, rejecting when none exists yet.
func (s *Service) existing(ctx context.Context, userID uuid.UUID) (*Company, error) {
	c, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "Company not found.")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
