package labels

import (
	"context"
	"errors"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

// GetOrCreateDraft returns the Label's draft, creating an empty one on first access.
func (s *Service) GetOrCreateDraft(ctx context.Context, labelID int64) (domain.Draft, error) {
	if err := domain.CheckFields(domain.ValidateID("label_id", labelID)); err != nil {
		return domain.Draft{}, err
	}
	var out domain.Draft
	err := s.store.InTx(ctx, "labels.get_draft", func(tx storage.Tx) error {
		d, err := s.loadDraft(ctx, tx, labelID)
		if err != nil {
			return err
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt, d.UpdatedAt = s.now(), s.now()
			if err := tx.PutDraft(ctx, d); err != nil {
				return err
			}
		}
		out = d
		return nil
	})
	return out, err
}

// UpsertDraft merges patch into the draft. Nil fields never clear a stored value.
func (s *Service) UpsertDraft(ctx context.Context, labelID int64, patch domain.Content) (domain.Draft, error) {
	errs := domain.ValidateID("label_id", labelID)
	errs = append(errs, domain.ValidateContent(patch)...)
	if err := domain.CheckFields(errs); err != nil {
		return domain.Draft{}, err
	}
	var out domain.Draft
	err := s.store.InTx(ctx, "labels.upsert_draft", func(tx storage.Tx) error {
		d, err := s.loadDraft(ctx, tx, labelID)
		if err != nil {
			return err
		}
		at := s.now()
		if d.CreatedAt.IsZero() {
			d.CreatedAt = at
		}
		d.Content = d.Content.Merge(patch)
		d.UpdatedAt = at
		if err := tx.PutDraft(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// loadDraft locks the label and returns its draft, or an unsaved empty draft.
func (s *Service) loadDraft(ctx context.Context, tx storage.Tx, labelID int64) (domain.Draft, error) {
	if _, err := tx.GetLabel(ctx, labelID, true); err != nil {
		return domain.Draft{}, storage.NotFoundAs(err, "label", labelID)
	}
	d, err := tx.GetDraft(ctx, labelID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Draft{LabelID: labelID}, nil
	}
	return d, err
}

// PublishDraft writes the draft as a new PREPARING Version. Fields still nil in the
// draft fall back to the latest Version. The draft itself is kept.
func (s *Service) PublishDraft(ctx context.Context, labelID int64) (domain.Version, error) {
	if err := domain.CheckFields(domain.ValidateID("label_id", labelID)); err != nil {
		return domain.Version{}, err
	}
	var out domain.Version
	err := s.store.InTx(ctx, "labels.publish_draft", func(tx storage.Tx) error {
		if _, err := tx.GetLabel(ctx, labelID, true); err != nil {
			return storage.NotFoundAs(err, "label", labelID)
		}
		d, err := tx.GetDraft(ctx, labelID)
		if err != nil {
			return storage.NotFoundAs(err, "draft", labelID)
		}

		action := domain.ActionCreate
		var base domain.Content
		prev, err := tx.LatestVersion(ctx, labelID)
		switch {
		case err == nil:
			action = domain.ActionUpdate
			base = prev.Content
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		at := s.now()
		preparing := domain.StatusPreparing
		out, err = s.append(ctx, tx, domain.Version{
			LabelID:         labelID,
			Action:          action,
			Content:         base.Merge(d.Content),
			CreatedAt:       at,
			Status:          &preparing,
			StatusChangedAt: &at,
		})
		return err
	})
	if err != nil {
		return domain.Version{}, err
	}
	s.m.VersionsAppended.WithLabelValues(string(out.Action)).Inc()
	s.log.Info().Int64("label_id", labelID).Int64("version_id", out.ID).Msg("draft published")
	return out, nil
}
