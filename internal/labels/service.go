// Package labels owns label identities, their append-only version history,
// the current-version pointer and the per-label draft workspace.
package labels

import (
	"context"
	"errors"
	"time"

	"example.com/labelengine/internal/copygen"
	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
	"example.com/labelengine/internal/storage"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 250
)

// Generator produces label copy from a brief.
type Generator interface {
	Generate(ctx context.Context, b copygen.Brief) (copygen.Copy, copygen.Source, error)
}

type Service struct {
	store storage.Store
	now   func() time.Time
	log   *logger.Logger
	m     *metrics.Metrics
	gen   Generator
}

type Deps struct {
	Store     storage.Store
	Now       func() time.Time
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Generator Generator
}

func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: d.Store, now: now, log: d.Log.Component("labels"), m: d.Metrics, gen: d.Generator}
}

// Result identifies the Version a write produced.
type Result struct {
	LabelID   int64         `json:"label_id"`
	VersionID int64         `json:"version_id"`
	Action    domain.Action `json:"action"`
}

// ClampLimit applies the list default and bounds. Zero means unspecified.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// CreateOrUpdate writes content as a new Version. A nil labelID allocates a new Label;
// otherwise the Label is upserted. The action is CREATE when the Label had no current
// Version before the call.
func (s *Service) CreateOrUpdate(ctx context.Context, labelID *int64, content domain.Content) (Result, error) {
	var errs []domain.FieldError
	if labelID != nil {
		errs = append(errs, domain.ValidateID("label_id", *labelID)...)
	}
	errs = append(errs, domain.ValidateRequiredContent(content)...)
	if err := domain.CheckFields(errs); err != nil {
		return Result{}, err
	}

	var res Result
	err := s.store.InTx(ctx, "labels.create_or_update", func(tx storage.Tx) error {
		at := s.now()
		id, hadVersion, err := s.ensureLabel(ctx, tx, labelID, content, at)
		if err != nil {
			return err
		}
		action := domain.ActionCreate
		if hadVersion {
			action = domain.ActionUpdate
		}
		v, err := s.append(ctx, tx, domain.Version{LabelID: id, Action: action, Content: content, CreatedAt: at})
		if err != nil {
			return err
		}
		res = Result{LabelID: id, VersionID: v.ID, Action: action}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.m.VersionsAppended.WithLabelValues(string(res.Action)).Inc()
	s.log.Info().Int64("label_id", res.LabelID).Int64("version_id", res.VersionID).Str("action", string(res.Action)).Msg("version written")
	return res, nil
}

// ensureLabel inserts or upserts the label row and reports whether it already had a
// current Version. The row is locked for the rest of the transaction.
func (s *Service) ensureLabel(ctx context.Context, tx storage.Tx, labelID *int64, content domain.Content, at time.Time) (int64, bool, error) {
	if labelID == nil {
		id, err := tx.InsertLabel(ctx, content, at)
		return id, false, err
	}
	hadVersion := false
	existing, err := tx.GetLabel(ctx, *labelID, true)
	switch {
	case err == nil:
		hadVersion = existing.CurrentVersionID != nil
	case !errors.Is(err, storage.ErrNotFound):
		return 0, false, err
	}
	if err := tx.UpsertLabel(ctx, *labelID, content, at); err != nil {
		return 0, false, err
	}
	return *labelID, hadVersion, nil
}

// append inserts v and repoints the label's current Version at it.
func (s *Service) append(ctx context.Context, tx storage.Tx, v domain.Version) (domain.Version, error) {
	out, err := tx.InsertVersion(ctx, v)
	if err != nil {
		return domain.Version{}, storage.NotFoundAs(err, "label", v.LabelID)
	}
	if err := tx.SetCurrentVersion(ctx, out.LabelID, out.ID, out.Content, out.CreatedAt); err != nil {
		return domain.Version{}, storage.NotFoundAs(err, "label", v.LabelID)
	}
	return out, nil
}

// AppendVersion appends a Version to an existing Label and repoints current.
func (s *Service) AppendVersion(ctx context.Context, labelID int64, action domain.Action, content domain.Content) (domain.Version, error) {
	errs := domain.ValidateID("label_id", labelID)
	switch action {
	case domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete:
	default:
		errs = append(errs, domain.FieldError{Field: "action", Msg: "must be CREATE, UPDATE or DELETE"})
	}
	errs = append(errs, domain.ValidateContent(content)...)
	if err := domain.CheckFields(errs); err != nil {
		return domain.Version{}, err
	}

	var out domain.Version
	err := s.store.InTx(ctx, "labels.append_version", func(tx storage.Tx) error {
		if _, err := tx.GetLabel(ctx, labelID, true); err != nil {
			return storage.NotFoundAs(err, "label", labelID)
		}
		v, err := s.append(ctx, tx, domain.Version{LabelID: labelID, Action: action, Content: content, CreatedAt: s.now()})
		out = v
		return err
	})
	if err != nil {
		return domain.Version{}, err
	}
	s.m.VersionsAppended.WithLabelValues(string(action)).Inc()
	return out, nil
}

// Delete records a logical delete: a DELETE Version carrying the current content.
func (s *Service) Delete(ctx context.Context, labelID int64) (domain.Version, error) {
	if err := domain.CheckFields(domain.ValidateID("label_id", labelID)); err != nil {
		return domain.Version{}, err
	}
	var out domain.Version
	err := s.store.InTx(ctx, "labels.delete", func(tx storage.Tx) error {
		l, err := tx.GetLabel(ctx, labelID, true)
		if err != nil {
			return storage.NotFoundAs(err, "label", labelID)
		}
		if l.CurrentVersionID == nil {
			return &domain.ConflictError{Reason: "label has no versions to delete"}
		}
		cur, err := tx.GetVersion(ctx, *l.CurrentVersionID, false)
		if err != nil {
			return err
		}
		if cur.Action == domain.ActionDelete {
			return &domain.ConflictError{Reason: "label is already deleted", Meta: map[string]any{"version_id": cur.ID}}
		}
		out, err = s.append(ctx, tx, domain.Version{LabelID: labelID, Action: domain.ActionDelete, Content: l.Content, CreatedAt: s.now()})
		return err
	})
	if err != nil {
		return domain.Version{}, err
	}
	s.m.VersionsAppended.WithLabelValues(string(domain.ActionDelete)).Inc()
	s.log.Info().Int64("label_id", labelID).Int64("version_id", out.ID).Msg("label deleted")
	return out, nil
}

// Snapshot returns the Label joined with its current Version.
func (s *Service) Snapshot(ctx context.Context, labelID int64) (domain.Snapshot, error) {
	if err := domain.CheckFields(domain.ValidateID("label_id", labelID)); err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	err := s.store.View(ctx, "labels.snapshot", func(tx storage.Tx) error {
		l, err := tx.GetLabel(ctx, labelID, false)
		if err != nil {
			return storage.NotFoundAs(err, "label", labelID)
		}
		snap.Label = l
		if l.CurrentVersionID == nil {
			return nil
		}
		v, err := tx.GetVersion(ctx, *l.CurrentVersionID, false)
		if err != nil {
			return err
		}
		snap.CurrentVersion = &v
		return nil
	})
	return snap, err
}

// ListVersions returns a Label's Versions newest first.
func (s *Service) ListVersions(ctx context.Context, labelID int64, limit int) ([]domain.Version, error) {
	if err := domain.CheckFields(domain.ValidateID("label_id", labelID)); err != nil {
		return nil, err
	}
	var out []domain.Version
	err := s.store.View(ctx, "labels.list_versions", func(tx storage.Tx) error {
		if _, err := tx.GetLabel(ctx, labelID, false); err != nil {
			return storage.NotFoundAs(err, "label", labelID)
		}
		vs, err := tx.ListVersions(ctx, storage.VersionFilter{LabelID: &labelID, Limit: ClampLimit(limit)})
		out = vs
		return err
	})
	return nonNil(out), err
}

// HistoryFeed returns Versions across all Labels newest first.
func (s *Service) HistoryFeed(ctx context.Context, limit int) ([]domain.Version, error) {
	var out []domain.Version
	err := s.store.View(ctx, "labels.history_feed", func(tx storage.Tx) error {
		vs, err := tx.ListVersions(ctx, storage.VersionFilter{Limit: ClampLimit(limit)})
		out = vs
		return err
	})
	return nonNil(out), err
}

// EditVersion merges patch into a Version that has not been submitted yet.
// Frozen Versions are rejected with a ConflictError carrying their status.
func (s *Service) EditVersion(ctx context.Context, versionID int64, patch domain.Content) (domain.Version, error) {
	errs := domain.ValidateID("version_id", versionID)
	if !patch.HasAny() {
		errs = append(errs, domain.FieldError{Field: "content", Msg: "at least one field is required"})
	}
	errs = append(errs, domain.ValidateContent(patch)...)
	if err := domain.CheckFields(errs); err != nil {
		return domain.Version{}, err
	}

	var out domain.Version
	err := s.store.InTx(ctx, "labels.edit_version", func(tx storage.Tx) error {
		v, err := tx.GetVersion(ctx, versionID, true)
		if err != nil {
			return storage.NotFoundAs(err, "version", versionID)
		}
		if !v.Editable() {
			return &domain.ConflictError{
				Reason: "version locked; create a new version instead",
				Meta:   map[string]any{"version_id": v.ID, "status": *v.Status},
			}
		}
		v.Content = v.Content.Merge(patch)
		if err := tx.UpdateVersionContent(ctx, v.ID, v.Content); err != nil {
			return err
		}
		l, err := tx.GetLabel(ctx, v.LabelID, false)
		if err != nil {
			return err
		}
		if l.CurrentVersionID != nil && *l.CurrentVersionID == v.ID {
			if err := tx.SetCurrentVersion(ctx, l.ID, v.ID, v.Content, s.now()); err != nil {
				return err
			}
		}
		out = v
		return nil
	})
	return out, err
}

// MetadataResult reports the Label after a metadata update. Updated is false when the
// patch named no metadata field; the Label is then returned unchanged.
type MetadataResult struct {
	Label   domain.Label `json:"label"`
	Updated bool         `json:"updated"`
	Reason  string       `json:"reason,omitempty"`
}

// UpdateMetadata changes metadata only. It never creates a Version.
func (s *Service) UpdateMetadata(ctx context.Context, labelID int64, patch domain.MetadataPatch) (MetadataResult, error) {
	errs := domain.ValidateID("label_id", labelID)
	errs = append(errs, domain.ValidateMetadata(patch)...)
	if err := domain.CheckFields(errs); err != nil {
		return MetadataResult{}, err
	}

	if patch.Empty() {
		var l domain.Label
		err := s.store.View(ctx, "labels.get", func(tx storage.Tx) error {
			var err error
			l, err = tx.GetLabel(ctx, labelID, false)
			return storage.NotFoundAs(err, "label", labelID)
		})
		if err != nil {
			return MetadataResult{}, err
		}
		return MetadataResult{Label: l, Reason: "no allowed fields"}, nil
	}

	var out domain.Label
	err := s.store.InTx(ctx, "labels.update_metadata", func(tx storage.Tx) error {
		l, err := tx.GetLabel(ctx, labelID, true)
		if err != nil {
			return storage.NotFoundAs(err, "label", labelID)
		}
		l.Metadata = l.Metadata.Apply(patch)
		l.UpdatedAt = s.now()
		if err := tx.UpdateLabelMetadata(ctx, l.ID, l.Metadata, l.UpdatedAt); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return MetadataResult{}, err
	}
	return MetadataResult{Label: out, Updated: true}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
