// Package novelty models enrollment-change (novelty) cases and drives the
// multi-step filing workflow against the Kampus backend. The backend owns the
// business rules; the transition table here mirrors them so invalid calls
// fail before a request is made.
package novelty

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Case statuses as reported by the backend.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusFiled    Status = "filed"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

// Case types accepted by the backend.
const (
	TypeEnrollment = "enrollment"
	TypeTransfer   = "transfer"
	TypeWithdrawal = "withdrawal"
	TypeCorrection = "correction"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusFiled},
	StatusFiled:    {StatusInReview},
	StatusInReview: {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted},
}

// CanTransition reports whether the backend would accept moving a case from
// one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Case struct {
	ID          int          `json:"id"`
	ClientRef   uuid.UUID    `json:"client_ref"`
	Type        string       `json:"type"`
	StudentID   int          `json:"student_id"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Attachment struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NewCase is the creation payload. ClientRef lets the caller correlate the
// created case across retries; FileWithAttachments fills it when empty.
type NewCase struct {
	ClientRef   uuid.UUID `json:"client_ref"`
	Type        string    `json:"type" validate:"required,oneof=enrollment transfer withdrawal correction"`
	StudentID   int       `json:"student_id" validate:"required,min=1"`
	Description string    `json:"description" validate:"required,min=10"`
}

func (nc *NewCase) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

// Review decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type Review struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Comment  string `json:"comment" validate:"required_if=Decision reject"`
}

func (r *Review) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// target returns the status a decision resolves to.
func (r Review) target() Status {
	if r.Decision == DecisionReject {
		return StatusRejected
	}
	return StatusApproved
}
