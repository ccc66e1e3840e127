package domain

import (
	"strings"
	"time"
)

// StatusCode is a regulatory status code in canonical upper case.
type StatusCode string

const (
	StatusPreparing       StatusCode = "PREPARING"
	StatusSubmitted       StatusCode = "SUBMITTED"
	StatusInReview        StatusCode = "IN_REVIEW"
	StatusNeedsCorrection StatusCode = "NEEDS_CORRECTION"
	StatusNeedsRevision   StatusCode = "NEEDS_REVISION"
	StatusApproved        StatusCode = "APPROVED"
	StatusRejected        StatusCode = "REJECTED"
	StatusIssued          StatusCode = "ISSUED"
)

type statusClass int

const (
	classOpen statusClass = iota
	classForward
)

// statusClasses is the only place the forward classification is declared.
// Codes missing from the table are accepted and treated as open.
var statusClasses = map[StatusCode]statusClass{
	StatusPreparing:       classOpen,
	StatusSubmitted:       classForward,
	StatusInReview:        classForward,
	StatusNeedsCorrection: classForward,
	StatusNeedsRevision:   classForward,
	StatusApproved:        classForward,
	StatusRejected:        classForward,
	StatusIssued:          classForward,
}

// NormalizeStatusCode trims and upper-cases s.
func NormalizeStatusCode(s string) StatusCode {
	return StatusCode(strings.ToUpper(strings.TrimSpace(s)))
}

// IsForward reports whether adopting this status requires a finalized review.
func (s StatusCode) IsForward() bool {
	return statusClasses[s] == classForward
}

// Known reports whether s appears in the status table.
func (s StatusCode) Known() bool {
	_, ok := statusClasses[s]
	return ok
}

const (
	DefaultEventType   = "STATUS"
	DefaultEventSource = "user"
)

// StatusEvent is one entry of a Version's regulatory status timeline.
type StatusEvent struct {
	ID          int64          `json:"id"`
	VersionID   int64          `json:"version_id"`
	Code        StatusCode     `json:"status_code"`
	Label       string         `json:"status_label"`
	EventType   string         `json:"event_type"`
	EffectiveAt time.Time      `json:"effective_at"`
	Notes       *string        `json:"notes"`
	ExternalID  *string        `json:"external_id"`
	Source      string         `json:"source"`
	Payload     map[string]any `json:"payload"`
}

// EventBefore orders events by (effective at, id) ascending.
func EventBefore(a, b StatusEvent) bool {
	if !a.EffectiveAt.Equal(b.EffectiveAt) {
		return a.EffectiveAt.Before(b.EffectiveAt)
	}
	return a.ID < b.ID
}
