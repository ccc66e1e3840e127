package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		in      string
		code    StatusCode
		forward bool
		known   bool
	}{
		{" submitted ", StatusSubmitted, true, true},
		{"Approved", StatusApproved, true, true},
		{"preparing", StatusPreparing, false, true},
		{"on_hold", "ON_HOLD", false, false},
	}
	for _, tc := range cases {
		code := NormalizeStatusCode(tc.in)
		if code != tc.code {
			t.Fatalf("NormalizeStatusCode(%q) = %q", tc.in, code)
		}
		if code.IsForward() != tc.forward || code.Known() != tc.known {
			t.Fatalf("%s: forward=%v known=%v", code, code.IsForward(), code.Known())
		}
	}
}

func TestEventBeforeTieBreaksOnID(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := StatusEvent{ID: 2, EffectiveAt: at}
	b := StatusEvent{ID: 1, EffectiveAt: at.Add(time.Second)}
	c := StatusEvent{ID: 3, EffectiveAt: at}
	if !EventBefore(a, b) || EventBefore(b, a) {
		t.Fatal("earlier effective time must sort first")
	}
	if !EventBefore(a, c) {
		t.Fatal("equal times must fall back to id")
	}
}

func TestContentMergeKeepsUnsetFields(t *testing.T) {
	base := Content{BrandName: Ptr("Old Ridge"), Tone: Ptr("heritage"), Strength: Ptr(45.0)}
	got := base.Merge(Content{Tone: Ptr("modern")})
	if *got.BrandName != "Old Ridge" || *got.Tone != "modern" || *got.Strength != 45.0 {
		t.Fatalf("merge = %+v", got)
	}
	if !got.HasAny() || (Content{}).HasAny() {
		t.Fatal("HasAny mismatch")
	}
}

func TestIsContentField(t *testing.T) {
	for _, f := range []string{"brand_name", "front_copy", "volume_ml"} {
		if !IsContentField(f) {
			t.Fatalf("%s should be content", f)
		}
	}
	for _, f := range []string{"tags", "internal_notes", "external_application_id"} {
		if IsContentField(f) {
			t.Fatalf("%s should be metadata", f)
		}
	}
}

func TestValidateRequiredContent(t *testing.T) {
	errs := ValidateRequiredContent(Content{BrandName: Ptr("  "), Strength: Ptr(120.0)})
	got := map[string]bool{}
	for _, e := range errs {
		got[e.Field] = true
	}
	for _, want := range []string{"brand_name", "product_name", "category", "strength", "volume_ml"} {
		if !got[want] {
			t.Fatalf("missing error for %s in %v", want, errs)
		}
	}

	ok := Content{
		BrandName: Ptr("A"), ProductName: Ptr("B"), Category: Ptr("Gin"),
		Strength: Ptr(40.0), VolumeML: Ptr(700),
	}
	if errs := ValidateRequiredContent(ok); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
}

func TestValidateMetadataOrder(t *testing.T) {
	long := strings.Repeat("x", MaxShortTextLen+1)
	errs := ValidateMetadata(MetadataPatch{
		Tags:                  &[]string{"ok", " "},
		WorkflowStatus:        &long,
		ExternalApplicationID: &long,
	})
	want := []string{"tags[1]", "workflow_status", "external_application_id"}
	if len(errs) != len(want) {
		t.Fatalf("errs = %v", errs)
	}
	for i, f := range want {
		if errs[i].Field != f {
			t.Fatalf("errs[%d] = %s, want %s", i, errs[i].Field, f)
		}
	}
}

func TestMetadataApply(t *testing.T) {
	m := Metadata{Tags: []string{"a"}, InternalNotes: Ptr("keep")}
	got := m.Apply(MetadataPatch{Tags: &[]string{"b", "c"}, TrackingNumber: Ptr("T1")})
	if len(got.Tags) != 2 || *got.InternalNotes != "keep" || *got.TrackingNumber != "T1" {
		t.Fatalf("apply = %+v", got)
	}
	if len(m.Tags) != 1 {
		t.Fatal("apply must not mutate the receiver")
	}
}

func TestVersionEditable(t *testing.T) {
	preparing, submitted := StatusPreparing, StatusSubmitted
	if !(Version{}).Editable() || !(Version{Status: &preparing}).Editable() {
		t.Fatal("unset and PREPARING versions are editable")
	}
	if (Version{Status: &submitted}).Editable() {
		t.Fatal("SUBMITTED versions are frozen")
	}
}

func TestParseDecision(t *testing.T) {
	if d, err := ParseDecision(" NOT_APPLICABLE "); err != nil || d != DecisionNotApplicable {
		t.Fatalf("ParseDecision = %q, %v", d, err)
	}
	if _, err := ParseDecision("pass"); err == nil {
		t.Fatal("decisions are case sensitive")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&StorageError{Op: "labels.create", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("StorageError must unwrap")
	}
	var ve *ValidationError
	if !errors.As(Invalid("x", "bad"), &ve) || ve.Fields[0].Field != "x" {
		t.Fatal("Invalid must build a ValidationError")
	}
	if CheckFields(nil) != nil {
		t.Fatal("CheckFields(nil) must be nil")
	}
}
