package domain

import (
	"fmt"
	"strings"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// Validation constraints
const (
	MaxShortTextLen = 256
	MaxLongTextLen  = 20_000
	MaxTagsCount    = 50
	MaxTagLen       = 64
	MaxStrength     = 100.0
)

// ValidateID requires a positive identifier.
func ValidateID(field string, id int64) []FieldError {
	if id <= 0 {
		return []FieldError{{field, "must be a positive integer"}}
	}
	return nil
}

// ValidateContent checks the fields that are present; absent fields are not required.
func ValidateContent(c Content) []FieldError {
	var errs []FieldError
	short := map[string]*string{
		"brand_name":   c.BrandName,
		"product_name": c.ProductName,
		"category":     c.Category,
		"tone":         c.Tone,
		"region":       c.Region,
	}
	for _, name := range []string{"brand_name", "product_name", "category", "tone", "region"} {
		if v := short[name]; v != nil && len(*v) > MaxShortTextLen {
			errs = append(errs, FieldError{name, fmt.Sprintf("max length %d", MaxShortTextLen)})
		}
	}
	long := []NamedText{
		{"flavor_notes", deref(c.FlavorNotes)},
		{"narrative", deref(c.Narrative)},
		{"additional_notes", deref(c.AdditionalNotes)},
		{"front_copy", deref(c.FrontCopy)},
		{"back_copy", deref(c.BackCopy)},
		{"compliance_statement", deref(c.ComplianceStatement)},
	}
	for _, f := range long {
		if len(f.Text) > MaxLongTextLen {
			errs = append(errs, FieldError{f.Name, fmt.Sprintf("max length %d", MaxLongTextLen)})
		}
	}
	if c.Strength != nil && (*c.Strength <= 0 || *c.Strength > MaxStrength) {
		errs = append(errs, FieldError{"strength", "must be in (0, 100]"})
	}
	if c.VolumeML != nil && *c.VolumeML <= 0 {
		errs = append(errs, FieldError{"volume_ml", "must be a positive integer"})
	}
	return errs
}

// ValidateRequiredContent additionally requires the identity and numeric attributes.
func ValidateRequiredContent(c Content) []FieldError {
	errs := ValidateContent(c)
	required := []struct {
		name string
		ok   bool
	}{
		{"brand_name", nonBlank(c.BrandName)},
		{"product_name", nonBlank(c.ProductName)},
		{"category", nonBlank(c.Category)},
		{"strength", c.Strength != nil},
		{"volume_ml", c.VolumeML != nil},
	}
	for _, r := range required {
		if !r.ok {
			errs = append(errs, FieldError{r.name, "required"})
		}
	}
	return errs
}

// ValidateMetadata checks tag limits and text lengths.
func ValidateMetadata(p MetadataPatch) []FieldError {
	var errs []FieldError
	if p.Tags != nil {
		tags := *p.Tags
		if len(tags) > MaxTagsCount {
			errs = append(errs, FieldError{"tags", fmt.Sprintf("max %d items", MaxTagsCount)})
		} else {
			for i, t := range tags {
				if strings.TrimSpace(t) == "" {
					errs = append(errs, FieldError{fmt.Sprintf("tags[%d]", i), "must be non-empty"})
					continue
				}
				if len(t) > MaxTagLen {
					errs = append(errs, FieldError{fmt.Sprintf("tags[%d]", i), fmt.Sprintf("max length %d", MaxTagLen)})
				}
			}
		}
	}
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"workflow_status", p.WorkflowStatus},
		{"tracking_number", p.TrackingNumber},
		{"external_application_id", p.ExternalApplicationID},
	} {
		if f.v != nil && len(*f.v) > MaxShortTextLen {
			errs = append(errs, FieldError{f.name, fmt.Sprintf("max length %d", MaxShortTextLen)})
		}
	}
	if p.InternalNotes != nil && len(*p.InternalNotes) > MaxLongTextLen {
		errs = append(errs, FieldError{"internal_notes", fmt.Sprintf("max length %d", MaxLongTextLen)})
	}
	return errs
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
