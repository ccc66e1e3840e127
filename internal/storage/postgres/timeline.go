package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/labelengine/internal/domain"
)

const statusEventCols = `id, version_id, status_code, status_label, event_type, effective_at, notes, external_id, source, payload`

func scanStatusEvent(row pgx.Row) (domain.StatusEvent, error) {
	var e domain.StatusEvent
	var code string
	var payload []byte
	if err := row.Scan(&e.ID, &e.VersionID, &code, &e.Label, &e.EventType, &e.EffectiveAt, &e.Notes, &e.ExternalID, &e.Source, &payload); err != nil {
		return e, err
	}
	e.Code = domain.StatusCode(code)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return e, fmt.Errorf("decode payload: %w", err)
		}
	}
	return e, nil
}

func (t *pgTx) InsertStatusEvent(ctx context.Context, e domain.StatusEvent) (domain.StatusEvent, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return domain.StatusEvent{}, fmt.Errorf("encode payload: %w", err)
	}
	out, err := scanStatusEvent(t.tx.QueryRow(ctx, `
INSERT INTO status_events (version_id, status_code, status_label, event_type, effective_at, notes, external_id, source, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb)
RETURNING `+statusEventCols,
		e.VersionID, string(e.Code), e.Label, e.EventType, e.EffectiveAt, e.Notes, e.ExternalID, e.Source, string(b)))
	if err != nil {
		return domain.StatusEvent{}, wrap("insert status event", err)
	}
	return out, nil
}

func (t *pgTx) ListStatusEvents(ctx context.Context, versionID int64) ([]domain.StatusEvent, error) {
	return t.queryStatusEvents(ctx, "list status events", `
SELECT `+statusEventCols+`
FROM status_events
WHERE version_id = $1
ORDER BY effective_at ASC, id ASC`, versionID)
}

// LatestStatusEvents returns the chronologically last event of every version.
func (t *pgTx) LatestStatusEvents(ctx context.Context) ([]domain.StatusEvent, error) {
	return t.queryStatusEvents(ctx, "latest status events", `
SELECT DISTINCT ON (version_id) `+statusEventCols+`
FROM status_events
ORDER BY version_id, effective_at DESC, id DESC`)
}

func (t *pgTx) queryStatusEvents(ctx context.Context, op, sql string, args ...any) ([]domain.StatusEvent, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []domain.StatusEvent
	for rows.Next() {
		e, err := scanStatusEvent(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, e)
	}
	return out, wrap(op, rows.Err())
}
