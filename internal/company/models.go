package company

import (
	"time"

	"github.com/google/uuid"
)

// Company is the single business profile attached to a user account. The
// CEO fields carry their own verification state, separate from the owning
// user's.
type Company struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Name             string `json:"name"`
	NationalCode     string `json:"national_code"`
	RegistryCode     string `json:"registry_code"`
	EconomicalNumber string `json:"economical_number"`
	Phone            string `json:"phone"`
	PostalCode       string `json:"postal_code"`
	PostalAddress    string `json:"postal_address"`
	Size             *int   `json:"size"`
	ActivityField    string `json:"activity_field"`

	CEOMobile           string     `json:"ceo_mobile"`
	CEOMobileVerified   bool       `json:"ceo_mobile_verified"`
	CEOMobileVerifiedAt *time.Time `json:"ceo_mobile_verified_at,omitempty"`

	CEONationalCode      string     `json:"ceo_national_code"`
	CEOShahkarVerified   bool       `json:"ceo_shahkar_verified"`
	CEOShahkarVerifiedAt *time.Time `json:"ceo_shahkar_verified_at,omitempty"`
	CEOShahkarResponse   string     `json:"ceo_shahkar_response,omitempty"`

	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
