// Package compliance runs compliance review sessions: the active rule catalog per
// product category, per-rule decisions and the completeness gate on finalize.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
	"example.com/labelengine/internal/storage"
)

// GatePolicy decides which finalized sessions unlock forward statuses.
type GatePolicy string

const (
	// AnyFinalized unlocks once any session of the Version was finalized.
	AnyFinalized GatePolicy = "any-finalized"
	// LatestFinalized additionally requires that no newer session is still open.
	LatestFinalized GatePolicy = "latest-finalized"
)

func ParseGatePolicy(s string) (GatePolicy, error) {
	switch p := GatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return AnyFinalized, nil
	case AnyFinalized, LatestFinalized:
		return p, nil
	default:
		return "", fmt.Errorf("unknown gate policy %q", s)
	}
}

type Engine struct {
	store  storage.Store
	now    func() time.Time
	log    *logger.Logger
	m      *metrics.Metrics
	policy GatePolicy
}

type Deps struct {
	Store   storage.Store
	Now     func() time.Time
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Policy  GatePolicy
}

func New(d Deps) *Engine {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	policy := d.Policy
	if policy == "" {
		policy = AnyFinalized
	}
	return &Engine{store: d.Store, now: now, log: d.Log.Component("compliance"), m: d.Metrics, policy: policy}
}

// Policy returns the configured gate policy.
func (e *Engine) Policy() GatePolicy { return e.policy }

// StartOrReuse returns the Version's open session, or opens one. reused reports
// whether an existing session was returned. A blank category falls back to the
// Version's own category.
func (e *Engine) StartOrReuse(ctx context.Context, versionID int64, category string, reviewer domain.Reviewer) (domain.Session, bool, error) {
	if err := domain.CheckFields(domain.ValidateID("version_id", versionID)); err != nil {
		return domain.Session{}, false, err
	}

	var (
		out    domain.Session
		reused bool
	)
	err := e.store.InTx(ctx, "compliance.start_session", func(tx storage.Tx) error {
		v, err := tx.GetVersion(ctx, versionID, true)
		if err != nil {
			return storage.NotFoundAs(err, "version", versionID)
		}
		sessions, err := tx.ListSessions(ctx, versionID)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if s.Status == domain.SessionInProgress {
				out, reused = s, true
				return nil
			}
		}

		cat := strings.TrimSpace(category)
		if cat == "" && v.Content.Category != nil {
			cat = strings.TrimSpace(*v.Content.Category)
		}
		if cat == "" {
			return domain.Invalid("category", "required")
		}
		out, err = tx.InsertSession(ctx, domain.Session{
			VersionID:    versionID,
			Category:     cat,
			ReviewerID:   domain.TrimmedOrNil(reviewer.ID),
			ReviewerRole: domain.TrimmedOrNil(reviewer.Role),
			Status:       domain.SessionInProgress,
			StartedAt:    e.now(),
		})
		return err
	})
	if err != nil {
		return domain.Session{}, false, err
	}
	if !reused {
		e.log.Info().Int64("session_id", out.ID).Int64("version_id", versionID).Str("category", out.Category).Msg("review session started")
	}
	return out, reused, nil
}

// BestSession returns the open session, else the most recently finished one, else nil.
func (e *Engine) BestSession(ctx context.Context, versionID int64) (*domain.Session, error) {
	if err := domain.CheckFields(domain.ValidateID("version_id", versionID)); err != nil {
		return nil, err
	}
	var best *domain.Session
	err := e.store.View(ctx, "compliance.best_session", func(tx storage.Tx) error {
		if _, err := tx.GetVersion(ctx, versionID, false); err != nil {
			return storage.NotFoundAs(err, "version", versionID)
		}
		sessions, err := tx.ListSessions(ctx, versionID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return nil
		}
		sortSessions(sessions)
		best = &sessions[0]
		return nil
	})
	return best, err
}

// sortSessions orders open sessions first, then by latest activity, then id, descending.
func sortSessions(ss []domain.Session) {
	activity := func(s domain.Session) time.Time {
		if s.FinalizedAt != nil {
			return *s.FinalizedAt
		}
		return s.StartedAt
	}
	sort.SliceStable(ss, func(i, j int) bool {
		oi, oj := ss[i].Status == domain.SessionInProgress, ss[j].Status == domain.SessionInProgress
		if oi != oj {
			return oi
		}
		ai, aj := activity(ss[i]), activity(ss[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return ss[i].ID > ss[j].ID
	})
}

// Events lists a session's decisions in recording order.
func (e *Engine) Events(ctx context.Context, sessionID int64) ([]domain.ReviewEvent, error) {
	if err := domain.CheckFields(domain.ValidateID("session_id", sessionID)); err != nil {
		return nil, err
	}
	var out []domain.ReviewEvent
	err := e.store.View(ctx, "compliance.list_events", func(tx storage.Tx) error {
		if _, err := tx.GetSession(ctx, sessionID, false); err != nil {
			return storage.NotFoundAs(err, "session", sessionID)
		}
		evs, err := tx.ListReviewEvents(ctx, sessionID)
		out = evs
		return err
	})
	if out == nil {
		out = []domain.ReviewEvent{}
	}
	return out, err
}

type DecisionInput struct {
	SessionID int64
	Rule      domain.RuleRef
	Decision  string
	Comment   *string
}

func (in DecisionInput) validate() (domain.Decision, error) {
	errs := domain.ValidateID("session_id", in.SessionID)
	if strings.TrimSpace(in.Rule.Code) == "" {
		errs = append(errs, domain.FieldError{Field: "rule_code", Msg: "required"})
	}
	if strings.TrimSpace(in.Rule.Version) == "" {
		errs = append(errs, domain.FieldError{Field: "rule_version", Msg: "required"})
	}
	d, err := domain.ParseDecision(in.Decision)
	if err != nil {
		errs = append(errs, domain.FieldError{Field: "decision", Msg: "must be PASS, FAIL, NEEDS_REVISION or NOT_APPLICABLE"})
	}
	if in.Comment != nil && len(*in.Comment) > domain.MaxLongTextLen {
		errs = append(errs, domain.FieldError{Field: "comment", Msg: fmt.Sprintf("max length %d", domain.MaxLongTextLen)})
	}
	return d, domain.CheckFields(errs)
}

// RecordDecision appends a decision for an active rule, snapshotting its text.
func (e *Engine) RecordDecision(ctx context.Context, in DecisionInput) (domain.ReviewEvent, error) {
	decision, err := in.validate()
	if err != nil {
		return domain.ReviewEvent{}, err
	}
	ref := domain.RuleRef{Code: strings.TrimSpace(in.Rule.Code), Version: strings.TrimSpace(in.Rule.Version)}

	var out domain.ReviewEvent
	err = e.store.InTx(ctx, "compliance.record_decision", func(tx storage.Tx) error {
		s, err := tx.GetSession(ctx, in.SessionID, true)
		if err != nil {
			return storage.NotFoundAs(err, "session", in.SessionID)
		}
		if s.Status != domain.SessionInProgress {
			return &domain.ConflictError{
				Reason: "session is not in progress",
				Meta:   map[string]any{"session_id": s.ID, "status": s.Status},
			}
		}
		rule, err := tx.GetRule(ctx, s.Category, ref)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err != nil || !rule.Active {
			return &domain.UnprocessableError{Reason: fmt.Sprintf("rule %s is not active for category %q", ref, s.Category)}
		}
		out, err = tx.InsertReviewEvent(ctx, domain.ReviewEvent{
			SessionID: s.ID,
			Rule:      rule.Ref(),
			Title:     rule.Title,
			Guidance:  rule.Guidance,
			Example:   rule.Example,
			Decision:  decision,
			Comment:   domain.TrimmedOrNil(in.Comment),
			CreatedAt: e.now(),
		})
		return err
	})
	return out, err
}

// Finalize closes a session once every active rule of its category has a decision.
// Any decision value counts. On missing decisions nothing is written.
func (e *Engine) Finalize(ctx context.Context, sessionID int64) (domain.Session, error) {
	if err := domain.CheckFields(domain.ValidateID("session_id", sessionID)); err != nil {
		return domain.Session{}, err
	}
	var out domain.Session
	err := e.store.InTx(ctx, "compliance.finalize", func(tx storage.Tx) error {
		s, err := tx.GetSession(ctx, sessionID, true)
		if err != nil {
			return storage.NotFoundAs(err, "session", sessionID)
		}
		if s.Status != domain.SessionInProgress {
			return &domain.ConflictError{
				Reason: "session is not in progress",
				Meta:   map[string]any{"session_id": s.ID, "status": s.Status},
			}
		}
		rules, err := tx.ListActiveRules(ctx, s.Category)
		if err != nil {
			return err
		}
		events, err := tx.ListReviewEvents(ctx, s.ID)
		if err != nil {
			return err
		}
		if missing := MissingDecisions(rules, events); len(missing) > 0 {
			return &domain.IncompleteStateError{SessionID: s.ID, Missing: missing}
		}

		at := e.now()
		if err := tx.FinalizeSession(ctx, s.ID, at); err != nil {
			return err
		}
		s.Status = domain.SessionFinalized
		s.FinalizedAt = &at
		out = s
		return nil
	})
	e.m.FinalizeTotal.WithLabelValues(finalizeOutcome(err)).Inc()
	if err != nil {
		return domain.Session{}, err
	}
	e.log.Info().Int64("session_id", out.ID).Int64("version_id", out.VersionID).Msg("review session finalized")
	return out, nil
}

func finalizeOutcome(err error) string {
	var (
		inc *domain.IncompleteStateError
		cf  *domain.ConflictError
	)
	switch {
	case err == nil:
		return "finalized"
	case errors.As(err, &inc):
		return "incomplete"
	case errors.As(err, &cf):
		return "conflict"
	default:
		return "error"
	}
}

// MissingDecisions returns the active rule pairs with no event, sorted by code then version.
func MissingDecisions(active []domain.Rule, events []domain.ReviewEvent) []domain.RuleRef {
	decided := make(map[domain.RuleRef]struct{}, len(events))
	for _, ev := range events {
		decided[ev.Rule] = struct{}{}
	}
	seen := map[domain.RuleRef]struct{}{}
	var missing []domain.RuleRef
	for _, r := range active {
		ref := r.Ref()
		if _, ok := decided[ref]; ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		missing = append(missing, ref)
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Code != missing[j].Code {
			return missing[i].Code < missing[j].Code
		}
		return missing[i].Version < missing[j].Version
	})
	return missing
}

// HasFinalizedReview reports whether the Version's review unlocks forward statuses.
func (e *Engine) HasFinalizedReview(ctx context.Context, versionID int64) (domain.ReviewStatus, error) {
	if err := domain.CheckFields(domain.ValidateID("version_id", versionID)); err != nil {
		return domain.ReviewStatus{}, err
	}
	var out domain.ReviewStatus
	err := e.store.View(ctx, "compliance.review_status", func(tx storage.Tx) error {
		if _, err := tx.GetVersion(ctx, versionID, false); err != nil {
			return storage.NotFoundAs(err, "version", versionID)
		}
		var err error
		out, err = e.ReviewStatusTx(ctx, tx, versionID)
		return err
	})
	return out, err
}

// ReviewStatusTx evaluates the gate inside the caller's transaction.
func (e *Engine) ReviewStatusTx(ctx context.Context, tx storage.Tx, versionID int64) (domain.ReviewStatus, error) {
	sessions, err := tx.ListSessions(ctx, versionID)
	if err != nil {
		return domain.ReviewStatus{}, err
	}
	st := domain.ReviewStatus{VersionID: versionID}
	open := false
	for _, s := range sessions {
		switch s.Status {
		case domain.SessionInProgress:
			open = true
		case domain.SessionFinalized:
			st.HasFinalized = true
			if s.FinalizedAt != nil && (st.FinalizedAt == nil || s.FinalizedAt.After(*st.FinalizedAt)) {
				st.FinalizedAt = s.FinalizedAt
			}
		}
	}
	if e.policy == LatestFinalized && open {
		st.HasFinalized = false
	}
	return st, nil
}
