package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedVersion(t *testing.T, s *Store) (labelID, versionID int64) {
	t.Helper()
	ctx := context.Background()
	err := s.InTx(ctx, "seed", func(tx storage.Tx) error {
		var err error
		content := domain.Content{Category: domain.Ptr("Rum")}
		if labelID, err = tx.InsertLabel(ctx, content, t0); err != nil {
			return err
		}
		v, err := tx.InsertVersion(ctx, domain.Version{LabelID: labelID, Action: domain.ActionCreate, Content: content, CreatedAt: t0})
		versionID = v.ID
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return labelID, versionID
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		if _, err := tx.InsertLabel(ctx, domain.Content{}, t0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	err = s.View(ctx, "test", func(tx storage.Tx) error {
		_, err := tx.GetLabel(ctx, 1, false)
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("rolled back label is visible: %v", err)
	}

	// The sequence is not consumed by a rolled back insert.
	labelID, _ := seedVersion(t, s)
	if labelID != 1 {
		t.Fatalf("labelID = %d", labelID)
	}
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.View(ctx, "test", func(tx storage.Tx) error {
		_, err := tx.InsertLabel(ctx, domain.Content{}, t0)
		return err
	})
	if !errors.Is(err, storage.ErrReadOnly) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, "test", func(storage.Tx) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err = %v called = %v", err, called)
	}
}

func TestUpsertLabelKeepsCallerID(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		if err := tx.UpsertLabel(ctx, 7, domain.Content{}, t0); err != nil {
			return err
		}
		id, err := tx.InsertLabel(ctx, domain.Content{}, t0)
		if err != nil {
			return err
		}
		if id == 7 {
			t.Errorf("InsertLabel reused an upserted id")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	labelID, first := seedVersion(t, s)
	var second int64
	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		v, err := tx.InsertVersion(ctx, domain.Version{LabelID: labelID, Action: domain.ActionUpdate, CreatedAt: t0})
		second = v.ID
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.View(ctx, "test", func(tx storage.Tx) error {
		vs, err := tx.ListVersions(ctx, storage.VersionFilter{LabelID: &labelID})
		if err != nil {
			t.Fatal(err)
		}
		if len(vs) != 2 || vs[0].ID != second || vs[1].ID != first {
			t.Fatalf("order = %+v", vs)
		}
		latest, err := tx.LatestVersion(ctx, labelID)
		if err != nil || latest.ID != second {
			t.Fatalf("latest = %+v %v", latest, err)
		}
		return nil
	})
}

func TestInsertVersionRequiresLabel(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		_, err := tx.InsertVersion(ctx, domain.Version{LabelID: 42})
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSetVersionStatusCoalescesExternalID(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, versionID := seedVersion(t, s)
	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		if err := tx.SetVersionStatus(ctx, versionID, domain.StatusSubmitted, domain.Ptr("COLA-1"), t0); err != nil {
			return err
		}
		return tx.SetVersionStatus(ctx, versionID, domain.StatusApproved, nil, t0.Add(time.Hour))
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.View(ctx, "test", func(tx storage.Tx) error {
		v, _ := tx.GetVersion(ctx, versionID, false)
		if *v.Status != domain.StatusApproved || *v.ExternalApplicationID != "COLA-1" {
			t.Fatalf("version = %+v", v)
		}
		return nil
	})
}

func TestRulesMatchCategoryCaseInsensitively(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		for _, r := range []domain.Rule{
			{Category: "Rum", Code: "B", Version: "1", Active: true},
			{Category: "rum", Code: "A", Version: "1", Active: true},
			{Category: "Rum", Code: "C", Version: "1", Active: false},
		} {
			if err := tx.UpsertRule(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.View(ctx, "test", func(tx storage.Tx) error {
		rules, _ := tx.ListActiveRules(ctx, " RUM ")
		if len(rules) != 2 || rules[0].Code != "A" || rules[1].Code != "B" {
			t.Fatalf("rules = %+v", rules)
		}
		r, err := tx.GetRule(ctx, "rum", domain.RuleRef{Code: "C", Version: "1"})
		if err != nil || r.Active {
			t.Fatalf("inactive rule lookup = %+v %v", r, err)
		}
		return nil
	})
}

func TestLatestStatusEventsPerVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, v1 := seedVersion(t, s)
	_, v2 := seedVersion(t, s)
	err := s.InTx(ctx, "test", func(tx storage.Tx) error {
		for _, e := range []domain.StatusEvent{
			{VersionID: v1, Code: domain.StatusSubmitted, EffectiveAt: t0.Add(2 * time.Hour)},
			{VersionID: v1, Code: domain.StatusPreparing, EffectiveAt: t0},
			{VersionID: v2, Code: domain.StatusPreparing, EffectiveAt: t0},
		} {
			if _, err := tx.InsertStatusEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.View(ctx, "test", func(tx storage.Tx) error {
		evs, _ := tx.ListStatusEvents(ctx, v1)
		if len(evs) != 2 || evs[0].Code != domain.StatusPreparing {
			t.Fatalf("timeline = %+v", evs)
		}
		latest, _ := tx.LatestStatusEvents(ctx)
		if len(latest) != 2 || latest[0].VersionID != v1 || latest[0].Code != domain.StatusSubmitted {
			t.Fatalf("latest = %+v", latest)
		}
		return nil
	})
}
