package processing

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentmesh/compliance-engine/internal/domain/consent"
)

// ComplianceStatus is the lifecycle state of a processing record.
type ComplianceStatus string

const (
	StatusActive      ComplianceStatus = "active"
	StatusDataDeleted ComplianceStatus = "data_deleted"
)

// Record tracks one instance of an agent (the controller) processing a user's
// data for a stated purpose under a legal basis. Deletion is a status
// transition, never a removal, so the processing history stays auditable.
type Record struct {
	ProcessingID     string             `json:"processing_id"`
	UserID           string             `json:"user_id"`
	AgentID          string             `json:"agent_id"`
	Purpose          string             `json:"purpose"`
	LegalBasis       consent.LegalBasis `json:"legal_basis"`
	DataTypes        []string           `json:"data_types"`
	ProcessingMethod string             `json:"processing_method"`
	Duration         string             `json:"duration"`
	SecurityMeasures []string           `json:"security_measures"`
	ConsentID        string             `json:"consent_id,omitempty"`
	StartTimestamp   time.Time          `json:"start_timestamp"`
	EndTimestamp     *time.Time         `json:"end_timestamp,omitempty"`
	ThirdParties     []string           `json:"third_parties"`
	ComplianceStatus ComplianceStatus   `json:"compliance_status"`
}

// SharingRecord documents one disclosure of a processing record's data to a
// third-party recipient. Data categories are copied from the parent at the
// moment of sharing.
type SharingRecord struct {
	SharingID      string    `json:"sharing_id"`
	ProcessingID   string    `json:"processing_id"`
	Recipient      string    `json:"recipient"`
	Purpose        string    `json:"purpose"`
	Safeguards     []string  `json:"safeguards"`
	DataCategories []string  `json:"data_categories"`
	Timestamp      time.Time `json:"timestamp"`
}

// DeletionRecord documents the verified deletion of a processing record's
// data.
type DeletionRecord struct {
	DeletionID     string    `json:"deletion_id"`
	ProcessingID   string    `json:"processing_id"`
	Reason         string    `json:"reason"`
	VerifiedBy     string    `json:"verified_by"`
	DataCategories []string  `json:"data_categories"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewID returns a prefixed, lexically sortable identifier. ULIDs keep ids
// unique at sub-millisecond registration rates without coordinating state.
func NewID(prefix string) string {
	return prefix + "_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// MarkDeleted transitions the record to data_deleted at the given instant.
// It reports whether the transition applied.
func (r *Record) MarkDeleted(at time.Time) bool {
	if r.ComplianceStatus == StatusDataDeleted {
		return false
	}
	r.ComplianceStatus = StatusDataDeleted
	r.EndTimestamp = &at
	return true
}

// AddThirdParty appends a recipient to the record's third-party list.
// Repeated sharing with the same recipient appends duplicates; the list is a
// disclosure history, not a set.
func (r *Record) AddThirdParty(recipient string) {
	r.ThirdParties = append(r.ThirdParties, recipient)
}

// HasDataType reports whether the record processes the given data category.
func (r *Record) HasDataType(category string) bool {
	for _, dt := range r.DataTypes {
		if dt == category {
			return true
		}
	}
	return false
}

// Filters narrows a processing-activity query. Zero-valued fields are
// ignored; populated fields are ANDed.
type Filters struct {
	ControllerID string
	Status       ComplianceStatus
	DataCategory string
	LegalBasis   consent.LegalBasis
	UserID       string
}

// Matches reports whether the record satisfies every populated filter.
func (f Filters) Matches(r *Record) bool {
	if f.ControllerID != "" && r.AgentID != f.ControllerID {
		return false
	}
	if f.Status != "" && r.ComplianceStatus != f.Status {
		return false
	}
	if f.DataCategory != "" && !r.HasDataType(f.DataCategory) {
		return false
	}
	if f.LegalBasis != "" && r.LegalBasis != f.LegalBasis {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	return true
}
