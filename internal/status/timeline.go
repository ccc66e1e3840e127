// Package status keeps the regulatory status timeline of each Version and
// mirrors its latest entry onto the Version row.
package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
	"example.com/labelengine/internal/storage"
)

// Gate answers, inside a transaction, whether a Version's review allows forward statuses.
type Gate interface {
	ReviewStatusTx(ctx context.Context, tx storage.Tx, versionID int64) (domain.ReviewStatus, error)
}

type Timeline struct {
	store storage.Store
	gate  Gate
	now   func() time.Time
	log   *logger.Logger
	m     *metrics.Metrics
}

type Deps struct {
	Store   storage.Store
	Gate    Gate
	Now     func() time.Time
	Log     *logger.Logger
	Metrics *metrics.Metrics
}

func New(d Deps) *Timeline {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Timeline{store: d.Store, gate: d.Gate, now: now, log: d.Log.Component("status"), m: d.Metrics}
}

type AppendInput struct {
	VersionID   int64
	Code        string
	Label       string
	EventType   string
	EffectiveAt *time.Time
	Notes       *string
	ExternalID  *string
	Source      string
	Payload     map[string]any
}

func (in AppendInput) normalize() (domain.StatusEvent, error) {
	errs := domain.ValidateID("version_id", in.VersionID)
	code := domain.NormalizeStatusCode(in.Code)
	if code == "" {
		errs = append(errs, domain.FieldError{Field: "status_code", Msg: "required"})
	}
	for _, f := range []struct{ name, v string }{
		{"status_code", string(code)},
		{"status_label", in.Label},
		{"event_type", in.EventType},
		{"source", in.Source},
	} {
		if len(f.v) > domain.MaxShortTextLen {
			errs = append(errs, domain.FieldError{Field: f.name, Msg: fmt.Sprintf("max length %d", domain.MaxShortTextLen)})
		}
	}
	if in.ExternalID != nil && len(*in.ExternalID) > domain.MaxShortTextLen {
		errs = append(errs, domain.FieldError{Field: "external_id", Msg: fmt.Sprintf("max length %d", domain.MaxShortTextLen)})
	}
	if in.Notes != nil && len(*in.Notes) > domain.MaxLongTextLen {
		errs = append(errs, domain.FieldError{Field: "notes", Msg: fmt.Sprintf("max length %d", domain.MaxLongTextLen)})
	}
	if err := domain.CheckFields(errs); err != nil {
		return domain.StatusEvent{}, err
	}

	ev := domain.StatusEvent{
		VersionID:  in.VersionID,
		Code:       code,
		Label:      strings.TrimSpace(in.Label),
		EventType:  strings.ToUpper(strings.TrimSpace(in.EventType)),
		Notes:      domain.TrimmedOrNil(in.Notes),
		ExternalID: domain.TrimmedOrNil(in.ExternalID),
		Source:     strings.TrimSpace(in.Source),
		Payload:    in.Payload,
	}
	if ev.Label == "" {
		ev.Label = string(code)
	}
	if ev.EventType == "" {
		ev.EventType = domain.DefaultEventType
	}
	if ev.Source == "" {
		ev.Source = domain.DefaultEventSource
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	if in.EffectiveAt != nil {
		ev.EffectiveAt = in.EffectiveAt.UTC()
	}
	return ev, nil
}

// Append records a status event. Forward statuses require a finalized review.
// The Version's status mirror is then set from the chronologically last event, so
// a back-dated event never overrides a later one.
func (t *Timeline) Append(ctx context.Context, in AppendInput) (domain.StatusEvent, error) {
	ev, err := in.normalize()
	if err != nil {
		return domain.StatusEvent{}, err
	}

	var out domain.StatusEvent
	err = t.store.InTx(ctx, "status.append", func(tx storage.Tx) error {
		if _, err := tx.GetVersion(ctx, ev.VersionID, true); err != nil {
			return storage.NotFoundAs(err, "version", ev.VersionID)
		}
		if ev.Code.IsForward() {
			review, err := t.gate.ReviewStatusTx(ctx, tx, ev.VersionID)
			if err != nil {
				return err
			}
			if !review.HasFinalized {
				return &domain.GateViolationError{VersionID: ev.VersionID, Status: ev.Code}
			}
		}

		if ev.EffectiveAt.IsZero() {
			ev.EffectiveAt = t.now()
		}
		inserted, err := tx.InsertStatusEvent(ctx, ev)
		if err != nil {
			return err
		}
		events, err := tx.ListStatusEvents(ctx, ev.VersionID)
		if err != nil {
			return err
		}
		last := events[len(events)-1]
		if err := tx.SetVersionStatus(ctx, ev.VersionID, last.Code, inserted.ExternalID, last.EffectiveAt); err != nil {
			return err
		}
		out = inserted
		return nil
	})

	var gv *domain.GateViolationError
	if errors.As(err, &gv) {
		t.m.GateRejectionsTotal.WithLabelValues(string(gv.Status)).Inc()
		t.log.Warn().Int64("version_id", gv.VersionID).Str("status_code", string(gv.Status)).Msg("forward status rejected without finalized review")
	}
	if err != nil {
		return domain.StatusEvent{}, err
	}
	t.log.Info().Int64("version_id", out.VersionID).Str("status_code", string(out.Code)).Bool("known_code", out.Code.Known()).Msg("status event appended")
	return out, nil
}

// Events lists a Version's timeline by (effective at, id) ascending.
func (t *Timeline) Events(ctx context.Context, versionID int64) ([]domain.StatusEvent, error) {
	if err := domain.CheckFields(domain.ValidateID("version_id", versionID)); err != nil {
		return nil, err
	}
	var out []domain.StatusEvent
	err := t.store.View(ctx, "status.list_events", func(tx storage.Tx) error {
		if _, err := tx.GetVersion(ctx, versionID, false); err != nil {
			return storage.NotFoundAs(err, "version", versionID)
		}
		evs, err := tx.ListStatusEvents(ctx, versionID)
		out = evs
		return err
	})
	if out == nil {
		out = []domain.StatusEvent{}
	}
	return out, err
}

// Current returns the last timeline event, or nil when there is none.
func (t *Timeline) Current(ctx context.Context, versionID int64) (*domain.StatusEvent, error) {
	evs, err := t.Events(ctx, versionID)
	if err != nil || len(evs) == 0 {
		return nil, err
	}
	return &evs[len(evs)-1], nil
}

// Summary returns the latest event of every Version that has one.
func (t *Timeline) Summary(ctx context.Context) ([]domain.StatusEvent, error) {
	var out []domain.StatusEvent
	err := t.store.View(ctx, "status.summary", func(tx storage.Tx) error {
		evs, err := tx.LatestStatusEvents(ctx)
		out = evs
		return err
	})
	if out == nil {
		out = []domain.StatusEvent{}
	}
	return out, err
}
