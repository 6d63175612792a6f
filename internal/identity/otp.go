package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"userapi/internal/platform/cache"
	"userapi/pkg/sentinel"
)

// OTPIssuer generates and checks one-time verification codes. Codes live in
// the cache under a key derived from the owner and the address being
// verified, so changing the address invalidates outstanding codes.
type OTPIssuer struct {
	cache    cache.Cache
	length   int
	expiry   time.Duration
	logCodes bool
	logger   *slog.Logger
}

func NewOTPIssuer(c cache.Cache, length int, expiry time.Duration, logCodes bool, logger *slog.Logger) *OTPIssuer {
	return &OTPIssuer{
		cache:    c,
		length:   length,
		expiry:   expiry,
		logCodes: logCodes,
		logger:   logger,
	}
}

func emailKey(user *User) string {
	return fmt.Sprintf("email.verify.token.%s.%s", user.ID, user.Email)
}

func mobileKey(user *User) string {
	return fmt.Sprintf("mobile.verify.token.%s.%s", user.ID, user.Mobile)
}

// IssueEmail stores a fresh code for the user's email address and returns it
// together with the expiry in minutes, for the notification payload.
func (o *OTPIssuer) IssueEmail(ctx context.Context, user *User) (string, int, error) {
	return o.issue(ctx, emailKey(user), "email "+user.Email)
}

// VerifyEmail reports whether code matches the outstanding email code and
// consumes it on success.
func (o *OTPIssuer) VerifyEmail(ctx context.Context, user *User, code string) (bool, error) {
	return o.verify(ctx, emailKey(user), code)
}

// IssueMobile stores a fresh code for the user's mobile number.
func (o *OTPIssuer) IssueMobile(ctx context.Context, user *User) (string, int, error) {
	return o.issue(ctx, mobileKey(user), "mobile "+user.Mobile)
}

// VerifyMobile reports whether code matches the outstanding mobile code and
// consumes it on success.
func (o *OTPIssuer) VerifyMobile(ctx context.Context, user *User, code string) (bool, error) {
	return o.verify(ctx, mobileKey(user), code)
}

// IssueForKey stores a code under an arbitrary cache key; used by the company
// service for CEO mobile verification.
func (o *OTPIssuer) IssueForKey(ctx context.Context, key, target string) (string, int, error) {
	return o.issue(ctx, key, target)
}

// VerifyForKey checks and consumes a code stored under an arbitrary key.
func (o *OTPIssuer) VerifyForKey(ctx context.Context, key, code string) (bool, error) {
	return o.verify(ctx, key, code)
}

func (o *OTPIssuer) issue(ctx context.Context, key, target string) (string, int, error) {
	code, err := generateIntegerCode(o.length)
	if err != nil {
		return "", 0, err
	}
	if err := o.cache.Set(ctx, key, code, o.expiry); err != nil {
		return "", 0, fmt.Errorf("store otp: %w", err)
	}
	if o.logCodes {
		o.logger.Info("verification code set", "target", target, "code", code)
	}
	return code, int(o.expiry.Minutes()), nil
}

func (o *OTPIssuer) verify(ctx context.Context, key, code string) (bool, error) {
	stored, err := o.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load otp: %w", err)
	}
	if code == "" || stored != code {
		return false, nil
	}
	if err := o.cache.Del(ctx, key); err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return true, nil
}

func generateIntegerCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}
