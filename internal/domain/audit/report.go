package audit

import "time"

// Result classifies the outcome of a compliance check.
type Result string

const (
	ResultCompliant    Result = "compliant"
	ResultNonCompliant Result = "non_compliant"
)

// ReviewCounts breaks down how many records of each kind an audit read.
type ReviewCounts struct {
	Consents   int `json:"consents"`
	Processing int `json:"processing"`
	Requests   int `json:"requests"`
}

// Report is the outcome of a compliance check: a score starting at 100 and
// decremented per violation, the concrete violations found, and whether a
// follow-up is required. Non-compliance is data, not an error.
type Report struct {
	ComplianceScore  float64      `json:"compliance_score"`
	Violations       []string     `json:"violations"`
	Result           Result       `json:"result"`
	FollowUpRequired bool         `json:"follow_up_required"`
	RecordsReviewed  ReviewCounts `json:"records_reviewed"`
	Timestamp        time.Time    `json:"timestamp"`
}

// RetentionReport is a narrower audit scoped to consent retention and
// withdrawal bookkeeping.
type RetentionReport struct {
	RecordsReviewed  int       `json:"records_reviewed"`
	ComplianceStatus string    `json:"compliance_status"`
	Protocol         string    `json:"protocol"`
	Operation        string    `json:"operation"`
	Timestamp        time.Time `json:"timestamp"`
}
