// Package session holds the per-session result state and the render function that advances it
// one user interaction at a time.
package session

import (
	"fmt"
	"strings"
	"time"
)

// EmailStatus tracks the outbound notification attempt for the current prediction.
type EmailStatus int

const (
	EmailIdle EmailStatus = iota
	EmailSending
	EmailSent
)

func (s EmailStatus) String() string {
	switch s {
	case EmailIdle:
		return "idle"
	case EmailSending:
		return "sending"
	case EmailSent:
		return "sent"
	default:
		return fmt.Sprintf("EmailStatus(%d)", int(s))
	}
}

// MarshalText encodes the status by name so stored sessions stay readable.
func (s EmailStatus) MarshalText() ([]byte, error) {
	switch s {
	case EmailIdle, EmailSending, EmailSent:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("invalid email status %d", int(s))
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *EmailStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "idle":
		*s = EmailIdle
	case "sending":
		*s = EmailSending
	case "sent":
		*s = EmailSent
	default:
		return fmt.Errorf("invalid email status %q", text)
	}
	return nil
}

// Prediction is the classification held for the current upload. Label and confidence live in
// one value so they are always set or cleared together.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Result is the state of one browser session.
type Result struct {
	UploadIdentity *string     `json:"upload_identity,omitempty"`
	UploadName     string      `json:"upload_name,omitempty"`
	Prediction     *Prediction `json:"prediction,omitempty"`
	EmailStatus    EmailStatus `json:"email_status"`
	Email          string      `json:"email,omitempty"`
	SendingSince   time.Time   `json:"sending_since,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at,omitempty"`
}

// New returns the initial state: no upload, no prediction, email idle.
func New() *Result {
	return &Result{}
}

// Reset clears every field back to its initial value.
func (r *Result) Reset() {
	*r = Result{}
}

// IsStale reports whether current names a different upload than the one the state was built
// for. Appearing and disappearing uploads both count as a change.
func (r *Result) IsStale(current *string) bool {
	switch {
	case r.UploadIdentity == nil && current == nil:
		return false
	case r.UploadIdentity == nil || current == nil:
		return true
	default:
		return *r.UploadIdentity != *current
	}
}

// HasUpload reports whether an upload is associated with the state.
func (r *Result) HasUpload() bool {
	return r.UploadIdentity != nil
}

// Clone returns a deep copy so a render can be discarded without touching the original.
func (r Result) Clone() Result {
	out := r
	if r.UploadIdentity != nil {
		id := *r.UploadIdentity
		out.UploadIdentity = &id
	}
	if r.Prediction != nil {
		p := *r.Prediction
		out.Prediction = &p
	}
	return out
}

func clampConfidence(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
