package verification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the verification request lifecycle state. Rejected and Verified
// are terminal.
type Status int

const (
	StatusSent       Status = 1
	StatusInspecting Status = 2
	StatusRejected   Status = 3
	StatusVerified   Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "Sent"
	case StatusInspecting:
		return "Inspecting"
	case StatusRejected:
		return "Rejected"
	case StatusVerified:
		return "Verified"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusVerified
}

// SubjectKind names the entity type a request verifies.
type SubjectKind string

const (
	SubjectUser    SubjectKind = "user"
	SubjectCompany SubjectKind = "company"
)

// SubjectRef points at the entity under verification. ID is the entity's own
// identifier rendered as a string: a UUID for users, a decimal for companies.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

func UserRef(id uuid.UUID) SubjectRef {
	return SubjectRef{Kind: SubjectUser, ID: id.String()}
}

func CompanyRef(id int64) SubjectRef {
	return SubjectRef{Kind: SubjectCompany, ID: strconv.FormatInt(id, 10)}
}

// UserID resolves the reference as a user id.
func (r SubjectRef) UserID() (uuid.UUID, error) {
	if r.Kind != SubjectUser {
		return uuid.Nil, fmt.Errorf("subject is a %s, not a user", r.Kind)
	}
	return uuid.Parse(r.ID)
}

// CompanyID resolves the reference as a company id.
func (r SubjectRef) CompanyID() (int64, error) {
	if r.Kind != SubjectCompany {
		return 0, fmt.Errorf("subject is a %s, not a company", r.Kind)
	}
	return strconv.ParseInt(r.ID, 10, 64)
}

// DocumentType tags what an uploaded document shows.
type DocumentType int

const (
	DocNationalIDCard DocumentType = 1
	DocFoundedAd      DocumentType = 2
)

func (t DocumentType) String() string {
	switch t {
	case DocNationalIDCard:
		return "National ID Card"
	case DocFoundedAd:
		return "Founded Ad"
	default:
		return fmt.Sprintf("DocumentType(%d)", int(t))
	}
}

func (t DocumentType) Valid() bool {
	return t == DocNationalIDCard || t == DocFoundedAd
}

// Document is an uploaded file supporting a verification request.
type Document struct {
	ID        int64        `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	FilePath  string       `json:"-"`
	Type      DocumentType `json:"tp"`
	CreatedAt time.Time    `json:"created_at"`
}

// Filename is the stored file's base name, for display.
func (d Document) Filename() string {
	if i := strings.LastIndexByte(d.FilePath, '/'); i >= 0 {
		return d.FilePath[i+1:]
	}
	return d.FilePath
}

// Request is one verification submission for a subject.
type Request struct {
	ID      int64      `json:"id"`
	Subject SubjectRef `json:"subject"`

	// UserID is the submitting user, kept alongside the subject reference so
	// listings filter without resolving the subject.
	UserID uuid.UUID `json:"user_id"`

	Status        Status     `json:"status"`
	AccountableID *uuid.UUID `json:"accountable,omitempty"`
	InspectedAt   *time.Time `json:"inspected_at,omitempty"`

	// AccountableNote is internal and never shown to the submitter.
	AccountableNote    string `json:"accountable_note,omitempty"`
	AccountableComment string `json:"accountable_comment"`
	UserComment        string `json:"user_comment"`

	Documents []Document `json:"documents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrDuplicateRequest means the subject already has a non-Rejected request.
	ErrDuplicateRequest = errors.New("an active verification request already exists for this subject")

	// ErrAlreadyInspected means the request reached a terminal status before
	// this inspection attempt.
	ErrAlreadyInspected = errors.New("request already inspected")

	// ErrSubjectAlreadyVerified means the subject's verified flag was already
	// set when the inspection tried to flip it.
	ErrSubjectAlreadyVerified = errors.New("subject already verified")
)
