package consent

import (
	"time"

	"github.com/google/uuid"
)

// LegalBasis is the lawful ground under which personal data is processed.
type LegalBasis string

const (
	BasisConsent            LegalBasis = "consent"
	BasisLegitimateInterest LegalBasis = "legitimate_interest"
	BasisContract           LegalBasis = "contract"
	BasisLegalObligation    LegalBasis = "legal_obligation"
	BasisVitalInterests     LegalBasis = "vital_interests"
	BasisPublicTask         LegalBasis = "public_task"
)

// Status is the lifecycle state of a consent record. The only stored
// transition is Active to Withdrawn; expiry is derived from the clock and
// never written back.
type Status string

const (
	StatusActive    Status = "active"
	StatusWithdrawn Status = "withdrawn"
	StatusExpired   Status = "expired"
)

// GDPRMetadata carries the GDPR-specific accountability fields a controller
// records alongside a consent grant.
type GDPRMetadata struct {
	LawfulBasis            string `json:"lawful_basis,omitempty"`
	ControllerID           string `json:"controller_id,omitempty"`
	DPOContact             string `json:"dpo_contact,omitempty"`
	RetentionJustification string `json:"retention_justification,omitempty"`
	AutomatedDecision      bool   `json:"automated_decision"`
}

// Record is an auditable grant of permission by a user for specific purposes
// and data types. Records are never physically deleted; withdrawal and expiry
// are status transitions so the audit trail survives.
type Record struct {
	ConsentID    string        `json:"consent_id"`
	UserID       string        `json:"user_id"`
	Purposes     []string      `json:"purposes"`
	DataTypes    []string      `json:"data_types"`
	Jurisdiction string        `json:"jurisdiction"`
	LegalBasis   LegalBasis    `json:"legal_basis"`
	Status       Status        `json:"status"`
	GrantedAt    time.Time     `json:"granted_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	WithdrawnAt  *time.Time    `json:"withdrawn_at,omitempty"`
	GDPR         *GDPRMetadata `json:"gdpr,omitempty"`
}

// NewRecord creates an active consent record expiring retention from now.
func NewRecord(userID string, purposes, dataTypes []string, jurisdiction string, basis LegalBasis, retention time.Duration) *Record {
	now := time.Now().UTC()
	return &Record{
		ConsentID:    uuid.NewString(),
		UserID:       userID,
		Purposes:     purposes,
		DataTypes:    dataTypes,
		Jurisdiction: jurisdiction,
		LegalBasis:   basis,
		Status:       StatusActive,
		GrantedAt:    now,
		ExpiresAt:    now.Add(retention),
	}
}

// Withdraw marks the record withdrawn at the given instant. It reports
// whether the transition applied; withdrawing a non-active record is a no-op
// at the entity level, the caller decides how to surface that.
func (r *Record) Withdraw(at time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	r.Status = StatusWithdrawn
	r.WithdrawnAt = &at
	return true
}

// IsExpired reports whether the record's retention window has lapsed.
func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// EffectiveStatus derives the record's status at the given instant. Expiry is
// computed, not stored, so an active record past its expiry reads as expired.
func (r *Record) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusActive && r.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}

// HasPurpose reports whether the grant covers the given purpose.
func (r *Record) HasPurpose(purpose string) bool {
	for _, p := range r.Purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// IsConsented reports whether the record currently authorizes processing for
// the purpose: active, unexpired, and purpose-bound.
func (r *Record) IsConsented(purpose string, now time.Time) bool {
	return r.EffectiveStatus(now) == StatusActive && r.HasPurpose(purpose)
}
