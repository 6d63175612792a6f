package events

import "encoding/json"

// Name identifies an event type. The topic an event is published to is its
// name, so downstream consumers subscribe per type.
type Name string

const (
	UserCreated                 Name = "UserCreated"
	UserUpdated                 Name = "UserUpdated"
	UserDeleted                 Name = "UserDeleted"
	PasswordResetRequested      Name = "PasswordResetRequested"
	EmailVerificationRequested  Name = "EmailVerificationRequested"
	MobileVerificationRequested Name = "MobileVerificationRequested"
	VerificationCreated         Name = "VerificationCreated"
	VerificationAssigned        Name = "VerificationAssigned"
	VerificationInspected       Name = "VerificationInspected"
)

// Event is a domain lifecycle notification. Key is the subject's identity and
// doubles as the broker message key, so all events about one subject land on
// one partition in order.
type Event struct {
	Name Name
	Key  string
	Data any
}

// New builds an event; the key is taken from the payload owner's id.
func New(name Name, key string, data any) Event {
	return Event{Name: name, Key: key, Data: data}
}

// Envelope is the wire format. Payload carries the serialized entity state at
// time of emission.
type Envelope struct {
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp float64         `json:"timestamp"`
}
