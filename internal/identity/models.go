package identity

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role capabilities and admin permissions. These live in the user's roles and
// access lists respectively; superusers implicitly hold everything.
const (
	RoleVerificationsAccountable = "verifications.accountable"
	RoleTicketsAccountable       = "tickets.accountable"

	PermViewUsers   = "users.view"
	PermChangeUsers = "users.change"
)

// User is the platform account. JSON tags define the event payload shape; the
// password hash never leaves the process.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username,omitempty"`

	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	Mobile           string     `json:"mobile,omitempty"`
	MobileVerified   bool       `json:"mobile_verified"`
	MobileVerifiedAt *time.Time `json:"mobile_verified_at,omitempty"`

	NationalCode      string     `json:"national_code,omitempty"`
	ShahkarVerified   bool       `json:"shahkar_verified"`
	ShahkarVerifiedAt *time.Time `json:"shahkar_verified_at,omitempty"`
	ShahkarResponse   string     `json:"shahkar_response,omitempty"`

	PostalCode    string `json:"postal_code,omitempty"`
	PostalAddress string `json:"postal_address,omitempty"`

	AvatarPath      string     `json:"avatar,omitempty"`
	AvatarUpdatedAt *time.Time `json:"avatar_updated_at,omitempty"`

	IdentityVerified   bool       `json:"identity_verified"`
	IdentityVerifiedAt *time.Time `json:"identity_verified_at,omitempty"`
	IdentityVerifiedBy *uuid.UUID `json:"identity_verified_by,omitempty"`

	Roles      []string `json:"roles"`
	AccessList []string `json:"access_list"`

	IsActive    bool `json:"is_active"`
	IsStaff     bool `json:"is_staff"`
	IsSuperuser bool `json:"is_superuser"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins first and last name, trimming when either is empty.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasCapability reports whether the user holds a role capability. Superusers
// hold all capabilities.
func (u *User) HasCapability(name string) bool {
	if u.IsSuperuser {
		return true
	}
	return slices.Contains(u.Roles, name)
}

// HasAccess reports whether the user holds an admin permission.
func (u *User) HasAccess(name string) bool {
	if u.IsSuperuser {
		return true
	}
	return slices.Contains(u.AccessList, name)
}

// CanBeAccountable reports assignment eligibility: active, staff-flagged and
// holding the verification accountable capability.
func (u *User) CanBeAccountable() bool {
	return u.IsActive && u.IsStaff && u.HasCapability(RoleVerificationsAccountable)
}
