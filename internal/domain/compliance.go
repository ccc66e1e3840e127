package domain

import (
	"fmt"
	"strings"
	"time"
)

// Rule is one versioned regulatory requirement for a product category.
type Rule struct {
	Category string  `json:"category"`
	Code     string  `json:"rule_code"`
	Version  string  `json:"rule_version"`
	Title    string  `json:"title"`
	Guidance string  `json:"guidance"`
	Example  *string `json:"example"`
	Section  *string `json:"section"`
	Active   bool    `json:"active"`
}

// Ref returns the rule's (code, version) pair.
func (r Rule) Ref() RuleRef { return RuleRef{Code: r.Code, Version: r.Version} }

// RuleRef identifies a rule within a category.
type RuleRef struct {
	Code    string `json:"rule_code"`
	Version string `json:"rule_version"`
}

func (r RuleRef) String() string { return r.Code + "@" + r.Version }

// SameCategory compares product categories the way rule lookups do:
// surrounding whitespace and case are ignored.
func SameCategory(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionFinalized  SessionStatus = "FINALIZED"
)

// Session is one compliance review pass over a Version.
type Session struct {
	ID           int64         `json:"id"`
	VersionID    int64         `json:"version_id"`
	Category     string        `json:"category"`
	ReviewerID   *string       `json:"reviewer_id"`
	ReviewerRole *string       `json:"reviewer_role"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	FinalizedAt  *time.Time    `json:"finalized_at"`
}

// Reviewer identifies who opened a session. Both fields are optional.
type Reviewer struct {
	ID   *string `json:"reviewer_id"`
	Role *string `json:"reviewer_role"`
}

type Decision string

const (
	DecisionPass          Decision = "PASS"
	DecisionFail          Decision = "FAIL"
	DecisionNeedsRevision Decision = "NEEDS_REVISION"
	DecisionNotApplicable Decision = "NOT_APPLICABLE"
)

var decisions = map[Decision]struct{}{
	DecisionPass:          {},
	DecisionFail:          {},
	DecisionNeedsRevision: {},
	DecisionNotApplicable: {},
}

// ParseDecision accepts the canonical decision values only.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.TrimSpace(s))
	if _, ok := decisions[d]; !ok {
		return "", fmt.Errorf("invalid decision %q", s)
	}
	return d, nil
}

// ReviewEvent is one rule decision. Rule text is a snapshot taken when recorded.
type ReviewEvent struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Rule      RuleRef   `json:"rule"`
	Title     string    `json:"title"`
	Guidance  string    `json:"guidance"`
	Example   *string   `json:"example"`
	Decision  Decision  `json:"decision"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewStatus answers whether a Version has a finalized review.
type ReviewStatus struct {
	VersionID    int64      `json:"version_id"`
	HasFinalized bool       `json:"has_finalized_review"`
	FinalizedAt  *time.Time `json:"finalized_at"`
}
