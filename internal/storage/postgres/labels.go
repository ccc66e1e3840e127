package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

const contentCols = `brand_name, product_name, category, strength, volume_ml, tone, flavor_notes,
  region, narrative, additional_notes, front_copy, back_copy, compliance_statement`

func contentArgs(c domain.Content) []any {
	return []any{
		c.BrandName, c.ProductName, c.Category, c.Strength, c.VolumeML, c.Tone, c.FlavorNotes,
		c.Region, c.Narrative, c.AdditionalNotes, c.FrontCopy, c.BackCopy, c.ComplianceStatement,
	}
}

func contentDest(c *domain.Content) []any {
	return []any{
		&c.BrandName, &c.ProductName, &c.Category, &c.Strength, &c.VolumeML, &c.Tone, &c.FlavorNotes,
		&c.Region, &c.Narrative, &c.AdditionalNotes, &c.FrontCopy, &c.BackCopy, &c.ComplianceStatement,
	}
}

// placeholders returns "$from, $from+1, ..." for n arguments.
func placeholders(from, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("$%d", from+i)
	}
	return s
}

// --- labels ---

const labelCols = `id, current_version_id, ` + contentCols + `,
  tags, internal_notes, workflow_status, tracking_number, external_application_id, created_at, updated_at`

func scanLabel(row pgx.Row) (domain.Label, error) {
	var l domain.Label
	dest := []any{&l.ID, &l.CurrentVersionID}
	dest = append(dest, contentDest(&l.Content)...)
	dest = append(dest, &l.Metadata.Tags, &l.Metadata.InternalNotes, &l.Metadata.WorkflowStatus,
		&l.Metadata.TrackingNumber, &l.Metadata.ExternalApplicationID, &l.CreatedAt, &l.UpdatedAt)
	err := row.Scan(dest...)
	return l, err
}

func (t *pgTx) InsertLabel(ctx context.Context, content domain.Content, at time.Time) (int64, error) {
	args := append(contentArgs(content), at)
	sql := `INSERT INTO labels (` + contentCols + `, created_at, updated_at)
VALUES (` + placeholders(1, len(args)) + `, $` + fmt.Sprint(len(args)) + `)
RETURNING id`
	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, wrap("insert label", err)
	}
	return id, nil
}

func (t *pgTx) UpsertLabel(ctx context.Context, id int64, content domain.Content, at time.Time) error {
	args := append([]any{id}, contentArgs(content)...)
	args = append(args, at)
	sql := `INSERT INTO labels (id, ` + contentCols + `, created_at, updated_at)
VALUES (` + placeholders(1, len(args)) + `, $` + fmt.Sprint(len(args)) + `)
ON CONFLICT (id) DO UPDATE SET
  brand_name = EXCLUDED.brand_name,
  product_name = EXCLUDED.product_name,
  category = EXCLUDED.category,
  strength = EXCLUDED.strength,
  volume_ml = EXCLUDED.volume_ml,
  tone = EXCLUDED.tone,
  flavor_notes = EXCLUDED.flavor_notes,
  region = EXCLUDED.region,
  narrative = EXCLUDED.narrative,
  additional_notes = EXCLUDED.additional_notes,
  front_copy = EXCLUDED.front_copy,
  back_copy = EXCLUDED.back_copy,
  compliance_statement = EXCLUDED.compliance_statement,
  updated_at = EXCLUDED.updated_at`
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return wrap("upsert label", err)
	}
	// Explicit ids bypass the sequence; keep it ahead of them.
	if _, err := t.tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('labels','id'), GREATEST((SELECT MAX(id) FROM labels), 1))`); err != nil {
		return wrap("advance label sequence", err)
	}
	return nil
}

// lockLabelSQL takes a transaction-scoped advisory lock keyed by the label id.
// The parameter is bigint so the id is sent as-is.
const lockLabelSQL = `SELECT pg_advisory_xact_lock($1::bigint)`

// GetLabel with lock also takes the advisory lock on the id, so create-on-miss
// paths for the same label serialize even before the row exists.
func (t *pgTx) GetLabel(ctx context.Context, id int64, lock bool) (domain.Label, error) {
	if lock {
		if _, err := t.tx.Exec(ctx, lockLabelSQL, id); err != nil {
			return domain.Label{}, wrap("lock label", err)
		}
	}
	l, err := scanLabel(t.tx.QueryRow(ctx, `SELECT `+labelCols+` FROM labels WHERE id=$1`+lockClause(lock), id))
	if err != nil {
		return domain.Label{}, wrap("get label", err)
	}
	return l, nil
}

func (t *pgTx) SetCurrentVersion(ctx context.Context, labelID, versionID int64, content domain.Content, at time.Time) error {
	args := append([]any{labelID, versionID, at}, contentArgs(content)...)
	ct, err := t.tx.Exec(ctx, `
UPDATE labels SET
  current_version_id = $2, updated_at = $3,
  brand_name = $4, product_name = $5, category = $6, strength = $7, volume_ml = $8,
  tone = $9, flavor_notes = $10, region = $11, narrative = $12, additional_notes = $13,
  front_copy = $14, back_copy = $15, compliance_statement = $16
WHERE id = $1`, args...)
	if err != nil {
		return wrap("set current version", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdateLabelMetadata(ctx context.Context, id int64, m domain.Metadata, at time.Time) error {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	ct, err := t.tx.Exec(ctx, `
UPDATE labels SET
  tags = $2, internal_notes = $3, workflow_status = $4, tracking_number = $5,
  external_application_id = $6, updated_at = $7
WHERE id = $1`, id, tags, m.InternalNotes, m.WorkflowStatus, m.TrackingNumber, m.ExternalApplicationID, at)
	if err != nil {
		return wrap("update label metadata", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- versions ---

const versionCols = `id, label_id, action, ` + contentCols + `,
  created_at, status, external_application_id, status_changed_at`

func scanVersion(row pgx.Row) (domain.Version, error) {
	var v domain.Version
	var action string
	var status *string
	dest := []any{&v.ID, &v.LabelID, &action}
	dest = append(dest, contentDest(&v.Content)...)
	dest = append(dest, &v.CreatedAt, &status, &v.ExternalApplicationID, &v.StatusChangedAt)
	if err := row.Scan(dest...); err != nil {
		return v, err
	}
	v.Action = domain.Action(action)
	if status != nil {
		code := domain.StatusCode(*status)
		v.Status = &code
	}
	return v, nil
}

func (t *pgTx) InsertVersion(ctx context.Context, v domain.Version) (domain.Version, error) {
	var status *string
	if v.Status != nil {
		s := string(*v.Status)
		status = &s
	}
	args := append([]any{v.LabelID, string(v.Action)}, contentArgs(v.Content)...)
	args = append(args, v.CreatedAt, status, v.ExternalApplicationID, v.StatusChangedAt)
	sql := `INSERT INTO label_versions (label_id, action, ` + contentCols + `,
  created_at, status, external_application_id, status_changed_at)
VALUES (` + placeholders(1, len(args)) + `)
RETURNING ` + versionCols
	out, err := scanVersion(t.tx.QueryRow(ctx, sql, args...))
	if err != nil {
		return domain.Version{}, wrap("insert version", err)
	}
	return out, nil
}

func (t *pgTx) GetVersion(ctx context.Context, id int64, lock bool) (domain.Version, error) {
	v, err := scanVersion(t.tx.QueryRow(ctx, `SELECT `+versionCols+` FROM label_versions WHERE id=$1`+lockClause(lock), id))
	if err != nil {
		return domain.Version{}, wrap("get version", err)
	}
	return v, nil
}

func (t *pgTx) LatestVersion(ctx context.Context, labelID int64) (domain.Version, error) {
	v, err := scanVersion(t.tx.QueryRow(ctx, `
SELECT `+versionCols+` FROM label_versions
WHERE label_id=$1
ORDER BY created_at DESC, id DESC
LIMIT 1`, labelID))
	if err != nil {
		return domain.Version{}, wrap("latest version", err)
	}
	return v, nil
}

func (t *pgTx) ListVersions(ctx context.Context, f storage.VersionFilter) ([]domain.Version, error) {
	cond := ""
	args := []any{}
	idx := 1
	if f.LabelID != nil {
		cond = fmt.Sprintf("WHERE label_id=$%d", idx)
		args = append(args, *f.LabelID)
		idx++
	}
	limit := ""
	if f.Limit > 0 {
		limit = fmt.Sprintf("LIMIT $%d", idx)
		args = append(args, f.Limit)
	}
	sql := fmt.Sprintf(`SELECT %s FROM label_versions %s ORDER BY created_at DESC, id DESC %s`, versionCols, cond, limit)

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap("list versions", err)
	}
	defer rows.Close()

	var out []domain.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, wrap("scan version", err)
		}
		out = append(out, v)
	}
	return out, wrap("list versions", rows.Err())
}

func (t *pgTx) UpdateVersionContent(ctx context.Context, id int64, c domain.Content) error {
	args := append([]any{id}, contentArgs(c)...)
	ct, err := t.tx.Exec(ctx, `
UPDATE label_versions SET
  brand_name = $2, product_name = $3, category = $4, strength = $5, volume_ml = $6,
  tone = $7, flavor_notes = $8, region = $9, narrative = $10, additional_notes = $11,
  front_copy = $12, back_copy = $13, compliance_statement = $14
WHERE id = $1`, args...)
	if err != nil {
		return wrap("update version content", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetVersionStatus(ctx context.Context, id int64, code domain.StatusCode, externalID *string, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `
UPDATE label_versions SET
  status = $2,
  external_application_id = COALESCE($3, external_application_id),
  status_changed_at = $4
WHERE id = $1`, id, string(code), externalID, at)
	if err != nil {
		return wrap("set version status", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- drafts ---

func (t *pgTx) GetDraft(ctx context.Context, labelID int64) (domain.Draft, error) {
	var d domain.Draft
	dest := []any{&d.LabelID}
	dest = append(dest, contentDest(&d.Content)...)
	dest = append(dest, &d.CreatedAt, &d.UpdatedAt)
	err := t.tx.QueryRow(ctx, `SELECT label_id, `+contentCols+`, created_at, updated_at FROM label_drafts WHERE label_id=$1`, labelID).Scan(dest...)
	if err != nil {
		return domain.Draft{}, wrap("get draft", err)
	}
	return d, nil
}

// PutDraft writes the full draft row. Callers merge under the label lock first.
func (t *pgTx) PutDraft(ctx context.Context, d domain.Draft) error {
	args := append([]any{d.LabelID}, contentArgs(d.Content)...)
	args = append(args, d.CreatedAt, d.UpdatedAt)
	sql := `INSERT INTO label_drafts (label_id, ` + contentCols + `, created_at, updated_at)
VALUES (` + placeholders(1, len(args)) + `)
ON CONFLICT (label_id) DO UPDATE SET
  brand_name = EXCLUDED.brand_name,
  product_name = EXCLUDED.product_name,
  category = EXCLUDED.category,
  strength = EXCLUDED.strength,
  volume_ml = EXCLUDED.volume_ml,
  tone = EXCLUDED.tone,
  flavor_notes = EXCLUDED.flavor_notes,
  region = EXCLUDED.region,
  narrative = EXCLUDED.narrative,
  additional_notes = EXCLUDED.additional_notes,
  front_copy = EXCLUDED.front_copy,
  back_copy = EXCLUDED.back_copy,
  compliance_statement = EXCLUDED.compliance_statement,
  updated_at = EXCLUDED.updated_at`
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return wrap("put draft", err)
	}
	return nil
}
