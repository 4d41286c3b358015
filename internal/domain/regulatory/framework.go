// Package regulatory maps jurisdictions to legal frameworks and resolves the
// response deadlines and statutory citations those frameworks impose on
// data-subject rights. Everything here is a pure function over fixed tables.
package regulatory

import "strings"

// Framework is a named legal regime governing personal-data processing.
type Framework string

const (
	FrameworkGDPR Framework = "GDPR"
	FrameworkCCPA Framework = "CCPA"
	// FrameworkDPDP is the generic baseline applied to jurisdictions without
	// a more specific mapping.
	FrameworkDPDP Framework = "DPDP"
)

// RightType identifies a data-subject right recognized by at least one
// supported framework.
type RightType string

const (
	RightAccess             RightType = "access"
	RightRectification      RightType = "rectification"
	RightErasure            RightType = "erasure"
	RightRestrictProcessing RightType = "restrict_processing"
	RightDataPortability    RightType = "data_portability"
	RightObject             RightType = "object"
	RightDoNotSell          RightType = "do_not_sell"
)

// ForJurisdiction resolves the framework governing a jurisdiction code.
// "EU" and any "EU-*" member code map to GDPR, "US-CA" to CCPA, and anything
// else degrades to the DPDP baseline rather than failing.
func ForJurisdiction(jurisdiction string) Framework {
	switch {
	case jurisdiction == "EU" || strings.HasPrefix(jurisdiction, "EU-"):
		return FrameworkGDPR
	case jurisdiction == "US-CA":
		return FrameworkCCPA
	default:
		return FrameworkDPDP
	}
}

// DeadlineDays returns the statutory response deadline in days for a rights
// request under the given framework. The deadline is flat per framework; the
// right type does not currently differentiate it.
func DeadlineDays(framework Framework, right RightType) int {
	_ = right
	switch framework {
	case FrameworkGDPR:
		return 30
	case FrameworkCCPA:
		return 45
	default:
		return 30
	}
}

var gdprCitations = map[RightType]string{
	RightAccess:             "GDPR Article 15",
	RightRectification:      "GDPR Article 16",
	RightErasure:            "GDPR Article 17",
	RightRestrictProcessing: "GDPR Article 18",
	RightDataPortability:    "GDPR Article 20",
	RightObject:             "GDPR Article 21",
}

var ccpaCitations = map[RightType]string{
	RightAccess:    "CCPA §1798.100",
	RightErasure:   "CCPA §1798.105",
	RightDoNotSell: "CCPA §1798.120",
}

// Citation returns the statutory citation backing a right under a framework.
// Rights without a specific citation fall back to the framework name.
func Citation(right RightType, framework Framework) string {
	var citations map[RightType]string
	switch framework {
	case FrameworkGDPR:
		citations = gdprCitations
	case FrameworkCCPA:
		citations = ccpaCitations
	}
	if citation, ok := citations[right]; ok {
		return citation
	}
	return string(framework)
}
