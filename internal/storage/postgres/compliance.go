package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

// --- rules ---

const ruleCols = `category, rule_code, rule_version, title, guidance, example, section, active`

func scanRule(row pgx.Row) (domain.Rule, error) {
	var r domain.Rule
	err := row.Scan(&r.Category, &r.Code, &r.Version, &r.Title, &r.Guidance, &r.Example, &r.Section, &r.Active)
	return r, err
}

func (t *pgTx) ListActiveRules(ctx context.Context, category string) ([]domain.Rule, error) {
	rows, err := t.tx.Query(ctx, `
SELECT `+ruleCols+`
FROM compliance_rules
WHERE category_key = upper(btrim($1)) AND active = true
ORDER BY COALESCE(section, ''), rule_code, rule_version DESC`, category)
	if err != nil {
		return nil, wrap("list rules", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, wrap("scan rule", err)
		}
		out = append(out, r)
	}
	return out, wrap("list rules", rows.Err())
}

func (t *pgTx) GetRule(ctx context.Context, category string, ref domain.RuleRef) (domain.Rule, error) {
	r, err := scanRule(t.tx.QueryRow(ctx, `
SELECT `+ruleCols+`
FROM compliance_rules
WHERE category_key = upper(btrim($1)) AND rule_code = $2 AND rule_version = $3`,
		category, ref.Code, ref.Version))
	if err != nil {
		return domain.Rule{}, wrap("get rule", err)
	}
	return r, nil
}

func (t *pgTx) UpsertRule(ctx context.Context, r domain.Rule) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO compliance_rules (`+ruleCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (category_key, rule_code, rule_version) DO UPDATE SET
  category = EXCLUDED.category,
  title = EXCLUDED.title,
  guidance = EXCLUDED.guidance,
  example = EXCLUDED.example,
  section = EXCLUDED.section,
  active = EXCLUDED.active`,
		r.Category, r.Code, r.Version, r.Title, r.Guidance, r.Example, r.Section, r.Active)
	return wrap("upsert rule", err)
}

// --- sessions ---

const sessionCols = `id, version_id, category, reviewer_id, reviewer_role, status, started_at, finalized_at`

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	var status string
	err := row.Scan(&s.ID, &s.VersionID, &s.Category, &s.ReviewerID, &s.ReviewerRole, &status, &s.StartedAt, &s.FinalizedAt)
	s.Status = domain.SessionStatus(status)
	return s, err
}

func (t *pgTx) InsertSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	out, err := scanSession(t.tx.QueryRow(ctx, `
INSERT INTO review_sessions (version_id, category, reviewer_id, reviewer_role, status, started_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING `+sessionCols,
		s.VersionID, s.Category, s.ReviewerID, s.ReviewerRole, string(s.Status), s.StartedAt))
	if err != nil {
		return domain.Session{}, wrap("insert session", err)
	}
	return out, nil
}

func (t *pgTx) GetSession(ctx context.Context, id int64, lock bool) (domain.Session, error) {
	s, err := scanSession(t.tx.QueryRow(ctx, `SELECT `+sessionCols+` FROM review_sessions WHERE id=$1`+lockClause(lock), id))
	if err != nil {
		return domain.Session{}, wrap("get session", err)
	}
	return s, nil
}

func (t *pgTx) ListSessions(ctx context.Context, versionID int64) ([]domain.Session, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+sessionCols+` FROM review_sessions WHERE version_id=$1 ORDER BY id`, versionID)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrap("scan session", err)
		}
		out = append(out, s)
	}
	return out, wrap("list sessions", rows.Err())
}

func (t *pgTx) FinalizeSession(ctx context.Context, id int64, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE review_sessions SET status='FINALIZED', finalized_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return wrap("finalize session", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- review events ---

const reviewEventCols = `id, session_id, rule_code, rule_version, title, guidance, example, decision, comment, created_at`

func scanReviewEvent(row pgx.Row) (domain.ReviewEvent, error) {
	var e domain.ReviewEvent
	var decision string
	err := row.Scan(&e.ID, &e.SessionID, &e.Rule.Code, &e.Rule.Version, &e.Title, &e.Guidance, &e.Example, &decision, &e.Comment, &e.CreatedAt)
	e.Decision = domain.Decision(decision)
	return e, err
}

func (t *pgTx) InsertReviewEvent(ctx context.Context, e domain.ReviewEvent) (domain.ReviewEvent, error) {
	out, err := scanReviewEvent(t.tx.QueryRow(ctx, `
INSERT INTO review_events (session_id, rule_code, rule_version, title, guidance, example, decision, comment, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING `+reviewEventCols,
		e.SessionID, e.Rule.Code, e.Rule.Version, e.Title, e.Guidance, e.Example, string(e.Decision), e.Comment, e.CreatedAt))
	if err != nil {
		return domain.ReviewEvent{}, wrap("insert review event", err)
	}
	return out, nil
}

func (t *pgTx) ListReviewEvents(ctx context.Context, sessionID int64) ([]domain.ReviewEvent, error) {
	rows, err := t.tx.Query(ctx, `
SELECT `+reviewEventCols+`
FROM review_events
WHERE session_id = $1
ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, wrap("list review events", err)
	}
	defer rows.Close()

	var out []domain.ReviewEvent
	for rows.Next() {
		e, err := scanReviewEvent(rows)
		if err != nil {
			return nil, wrap("scan review event", err)
		}
		out = append(out, e)
	}
	return out, wrap("list review events", rows.Err())
}
