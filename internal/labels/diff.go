package labels

import (
	"context"

	"github.com/sergi/go-diff/diffmatchpatch"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

// Segment is one run of a character diff.
type Segment struct {
	Op   string `json:"op"` // equal, insert, delete
	Text string `json:"text"`
}

// FieldDiff compares one copy field between two Versions.
type FieldDiff struct {
	Field    string    `json:"field"`
	Changed  bool      `json:"changed"`
	Patch    string    `json:"patch,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

type VersionDiff struct {
	LabelID int64       `json:"label_id"`
	From    int64       `json:"from_version_id"`
	To      int64       `json:"to_version_id"`
	Fields  []FieldDiff `json:"fields"`
}

// Diff compares the text fields of two Versions of the same Label.
func (s *Service) Diff(ctx context.Context, fromID, toID int64) (VersionDiff, error) {
	errs := domain.ValidateID("from_version_id", fromID)
	errs = append(errs, domain.ValidateID("to_version_id", toID)...)
	if err := domain.CheckFields(errs); err != nil {
		return VersionDiff{}, err
	}

	var from, to domain.Version
	err := s.store.View(ctx, "labels.diff", func(tx storage.Tx) error {
		var err error
		if from, err = tx.GetVersion(ctx, fromID, false); err != nil {
			return storage.NotFoundAs(err, "version", fromID)
		}
		if to, err = tx.GetVersion(ctx, toID, false); err != nil {
			return storage.NotFoundAs(err, "version", toID)
		}
		return nil
	})
	if err != nil {
		return VersionDiff{}, err
	}
	if from.LabelID != to.LabelID {
		return VersionDiff{}, domain.Invalid("from_version_id", "versions belong to different labels")
	}
	return diffVersions(from, to), nil
}

func diffVersions(from, to domain.Version) VersionDiff {
	dmp := diffmatchpatch.New()
	before := from.Content.TextFields()
	after := to.Content.TextFields()

	out := VersionDiff{LabelID: from.LabelID, From: from.ID, To: to.ID, Fields: make([]FieldDiff, 0, len(before))}
	for i := range before {
		a, b := before[i].Text, after[i].Text
		fd := FieldDiff{Field: before[i].Name, Changed: a != b}
		if fd.Changed {
			diffs := dmp.DiffMain(a, b, false)
			diffs = dmp.DiffCleanupSemantic(diffs)
			fd.Patch = dmp.PatchToText(dmp.PatchMake(a, diffs))
			for _, d := range diffs {
				fd.Segments = append(fd.Segments, Segment{Op: opName(d.Type), Text: d.Text})
			}
		}
		out.Fields = append(out.Fields, fd)
	}
	return out
}

func opName(op diffmatchpatch.Operation) string {
	switch op {
	case diffmatchpatch.DiffInsert:
		return "insert"
	case diffmatchpatch.DiffDelete:
		return "delete"
	default:
		return "equal"
	}
}
