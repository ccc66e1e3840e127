package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

// ActiveRules lists the active rules of a category, matched ignoring case and
// surrounding whitespace.
func (e *Engine) ActiveRules(ctx context.Context, category string) ([]domain.Rule, error) {
	if strings.TrimSpace(category) == "" {
		return nil, domain.Invalid("category", "required")
	}
	var out []domain.Rule
	err := e.store.View(ctx, "compliance.active_rules", func(tx storage.Tx) error {
		rules, err := tx.ListActiveRules(ctx, category)
		out = rules
		return err
	})
	if out == nil {
		out = []domain.Rule{}
	}
	return out, err
}

func validateRule(r domain.Rule) error {
	var errs []domain.FieldError
	for _, f := range []struct{ name, v string }{
		{"category", r.Category},
		{"rule_code", r.Code},
		{"rule_version", r.Version},
		{"title", r.Title},
		{"guidance", r.Guidance},
	} {
		switch {
		case strings.TrimSpace(f.v) == "":
			errs = append(errs, domain.FieldError{Field: f.name, Msg: "required"})
		case f.name != "guidance" && len(f.v) > domain.MaxShortTextLen:
			errs = append(errs, domain.FieldError{Field: f.name, Msg: fmt.Sprintf("max length %d", domain.MaxShortTextLen)})
		}
	}
	if len(r.Guidance) > domain.MaxLongTextLen {
		errs = append(errs, domain.FieldError{Field: "guidance", Msg: fmt.Sprintf("max length %d", domain.MaxLongTextLen)})
	}
	return domain.CheckFields(errs)
}

func normalizeRule(r domain.Rule) domain.Rule {
	r.Category = strings.TrimSpace(r.Category)
	r.Code = strings.TrimSpace(r.Code)
	r.Version = strings.TrimSpace(r.Version)
	r.Section = domain.TrimmedOrNil(r.Section)
	r.Example = domain.TrimmedOrNil(r.Example)
	return r
}

// UpsertRule inserts or replaces a catalog entry keyed by (category, code, version).
// Existing review events keep the text they were recorded with.
func (e *Engine) UpsertRule(ctx context.Context, r domain.Rule) (domain.Rule, error) {
	if err := validateRule(r); err != nil {
		return domain.Rule{}, err
	}
	r = normalizeRule(r)
	err := e.store.InTx(ctx, "compliance.upsert_rule", func(tx storage.Tx) error {
		return tx.UpsertRule(ctx, r)
	})
	if err != nil {
		return domain.Rule{}, err
	}
	return r, nil
}

// SetRuleActive toggles whether a rule takes part in reviews.
func (e *Engine) SetRuleActive(ctx context.Context, category string, ref domain.RuleRef, active bool) (domain.Rule, error) {
	if strings.TrimSpace(category) == "" {
		return domain.Rule{}, domain.Invalid("category", "required")
	}
	var out domain.Rule
	err := e.store.InTx(ctx, "compliance.set_rule_active", func(tx storage.Tx) error {
		r, err := tx.GetRule(ctx, category, ref)
		if err != nil {
			return storage.NotFoundAs(err, "rule", ref.String())
		}
		r.Active = active
		out = r
		return tx.UpsertRule(ctx, r)
	})
	return out, err
}

type catalogEntry struct {
	Category string  `json:"category"`
	Code     string  `json:"rule_code"`
	Version  string  `json:"rule_version"`
	Title    string  `json:"title"`
	Guidance string  `json:"guidance"`
	Example  *string `json:"example"`
	Section  *string `json:"section"`
	Active   *bool   `json:"active"`
}

// DecodeCatalog reads a JSON array of rules. Entries without "active" are active.
func DecodeCatalog(r io.Reader) ([]domain.Rule, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var entries []catalogEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	rules := make([]domain.Rule, 0, len(entries))
	for _, e := range entries {
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		rules = append(rules, domain.Rule{
			Category: e.Category, Code: e.Code, Version: e.Version,
			Title: e.Title, Guidance: e.Guidance, Example: e.Example, Section: e.Section,
			Active: active,
		})
	}
	return rules, nil
}

// ImportRules upserts every rule in one transaction. Nothing is written when any
// entry is invalid.
func (e *Engine) ImportRules(ctx context.Context, rules []domain.Rule) (int, error) {
	var errs []domain.FieldError
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			for _, f := range err.(*domain.ValidationError).Fields {
				errs = append(errs, domain.FieldError{Field: fmt.Sprintf("[%d].%s", i, f.Field), Msg: f.Msg})
			}
		}
	}
	if err := domain.CheckFields(errs); err != nil {
		return 0, err
	}
	err := e.store.InTx(ctx, "compliance.import_rules", func(tx storage.Tx) error {
		for _, r := range rules {
			if err := tx.UpsertRule(ctx, normalizeRule(r)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.log.Info().Int("count", len(rules)).Msg("rule catalog imported")
	return len(rules), nil
}
