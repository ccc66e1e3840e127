package domain

import "strings"

// Content is the full set of label content fields. Every field is nullable so the
// same shape serves versions, drafts and partial edits.
type Content struct {
	BrandName           *string  `json:"brand_name"`
	ProductName         *string  `json:"product_name"`
	Category            *string  `json:"category"`
	Strength            *float64 `json:"strength"`
	VolumeML            *int     `json:"volume_ml"`
	Tone                *string  `json:"tone"`
	FlavorNotes         *string  `json:"flavor_notes"`
	Region              *string  `json:"region"`
	Narrative           *string  `json:"narrative"`
	AdditionalNotes     *string  `json:"additional_notes"`
	FrontCopy           *string  `json:"front_copy"`
	BackCopy            *string  `json:"back_copy"`
	ComplianceStatement *string  `json:"compliance_statement"`
}

// ContentFieldNames lists the wire names of every content field.
var ContentFieldNames = []string{
	"brand_name", "product_name", "category", "strength", "volume_ml",
	"tone", "flavor_notes", "region", "narrative", "additional_notes",
	"front_copy", "back_copy", "compliance_statement",
}

// IsContentField reports whether name is a version-controlled content field.
func IsContentField(name string) bool {
	for _, f := range ContentFieldNames {
		if f == name {
			return true
		}
	}
	return false
}

// Merge applies patch on top of c. A nil field in patch never clears a value in c.
func (c Content) Merge(patch Content) Content {
	out := c
	out.BrandName = pick(patch.BrandName, c.BrandName)
	out.ProductName = pick(patch.ProductName, c.ProductName)
	out.Category = pick(patch.Category, c.Category)
	out.Strength = pick(patch.Strength, c.Strength)
	out.VolumeML = pick(patch.VolumeML, c.VolumeML)
	out.Tone = pick(patch.Tone, c.Tone)
	out.FlavorNotes = pick(patch.FlavorNotes, c.FlavorNotes)
	out.Region = pick(patch.Region, c.Region)
	out.Narrative = pick(patch.Narrative, c.Narrative)
	out.AdditionalNotes = pick(patch.AdditionalNotes, c.AdditionalNotes)
	out.FrontCopy = pick(patch.FrontCopy, c.FrontCopy)
	out.BackCopy = pick(patch.BackCopy, c.BackCopy)
	out.ComplianceStatement = pick(patch.ComplianceStatement, c.ComplianceStatement)
	return out
}

// HasAny reports whether at least one field is set.
func (c Content) HasAny() bool {
	return c != Content{}
}

// TextFields returns the narrative and copy fields in display order, nil values as "".
func (c Content) TextFields() []NamedText {
	return []NamedText{
		{Name: "front_copy", Text: deref(c.FrontCopy)},
		{Name: "back_copy", Text: deref(c.BackCopy)},
		{Name: "compliance_statement", Text: deref(c.ComplianceStatement)},
		{Name: "narrative", Text: deref(c.Narrative)},
	}
}

// NamedText is one text field of a Content value.
type NamedText struct {
	Name string
	Text string
}

func pick[T any](preferred, fallback *T) *T {
	if preferred != nil {
		return preferred
	}
	return fallback
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// TrimmedOrNil returns nil for blank strings, else the trimmed value.
func TrimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
