// Package copygen produces front, back and compliance copy for a label brief,
// either through an LLM provider or from a deterministic template.
package copygen

import (
	"strconv"
	"strings"

	"example.com/labelengine/internal/domain"
)

// GovernmentWarning is the US alcoholic beverage health warning.
const GovernmentWarning = "GOVERNMENT WARNING: (1) According to the Surgeon General, women should not drink alcoholic beverages during pregnancy because of the risk of birth defects. (2) Consumption of alcoholic beverages impairs your ability to drive a car or operate machinery, and may cause health problems."

const defaultTone = "heritage"

// Brief is the product description copy is generated from.
type Brief struct {
	BrandName   string  `json:"brand_name"`
	ProductName string  `json:"product_name"`
	Category    string  `json:"category"`
	Strength    float64 `json:"strength"`
	VolumeML    int     `json:"volume_ml"`
	Tone        *string `json:"tone"`
	Region      *string `json:"region"`
	FlavorNotes *string `json:"flavor_notes"`
	Narrative   *string `json:"narrative"`
	ExtraNotes  *string `json:"additional_notes"`
}

// Validate requires brand, product, category, strength and volume.
func (b Brief) Validate() error {
	var errs []domain.FieldError
	for _, f := range []struct{ name, v string }{
		{"brand_name", b.BrandName},
		{"product_name", b.ProductName},
		{"category", b.Category},
	} {
		if strings.TrimSpace(f.v) == "" {
			errs = append(errs, domain.FieldError{Field: f.name, Msg: "required"})
		}
	}
	if b.Strength <= 0 || b.Strength > domain.MaxStrength {
		errs = append(errs, domain.FieldError{Field: "strength", Msg: "must be in (0, 100]"})
	}
	if b.VolumeML <= 0 {
		errs = append(errs, domain.FieldError{Field: "volume_ml", Msg: "must be a positive integer"})
	}
	return domain.CheckFields(errs)
}

// Content converts the brief into label content without any copy fields.
func (b Brief) Content() domain.Content {
	return domain.Content{
		BrandName:       domain.Ptr(strings.TrimSpace(b.BrandName)),
		ProductName:     domain.Ptr(strings.TrimSpace(b.ProductName)),
		Category:        domain.Ptr(strings.TrimSpace(b.Category)),
		Strength:        domain.Ptr(b.Strength),
		VolumeML:        domain.Ptr(b.VolumeML),
		Tone:            domain.Ptr(b.tone()),
		Region:          domain.TrimmedOrNil(b.Region),
		FlavorNotes:     domain.TrimmedOrNil(b.FlavorNotes),
		Narrative:       domain.TrimmedOrNil(b.Narrative),
		AdditionalNotes: domain.TrimmedOrNil(b.ExtraNotes),
	}
}

func (b Brief) tone() string {
	if t := domain.TrimmedOrNil(b.Tone); t != nil {
		return *t
	}
	return defaultTone
}

func formatStrength(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Copy is generated label text.
type Copy struct {
	FrontCopy           string `json:"front_copy"`
	BackCopy            string `json:"back_copy"`
	ComplianceStatement string `json:"compliance_statement"`
}

// Apply writes the copy into c.
func (c Copy) Apply(content domain.Content) domain.Content {
	return content.Merge(domain.Content{
		FrontCopy:           domain.Ptr(c.FrontCopy),
		BackCopy:            domain.Ptr(c.BackCopy),
		ComplianceStatement: domain.Ptr(c.ComplianceStatement),
	})
}

// Source tells where generated copy came from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Fallback renders copy from a fixed template.
func Fallback(b Brief) Copy {
	front := strings.Join([]string{
		strings.TrimSpace(b.BrandName),
		strings.TrimSpace(b.ProductName),
		strings.TrimSpace(b.Category),
		formatStrength(b.Strength) + "% ABV • " + strconv.Itoa(b.VolumeML) + "ml",
	}, "\n")

	back := []string{strings.TrimSpace(b.ProductName) + " from " + strings.TrimSpace(b.BrandName) + "."}
	if r := domain.TrimmedOrNil(b.Region); r != nil {
		back = append(back, "Crafted in "+*r+".")
	}
	if f := domain.TrimmedOrNil(b.FlavorNotes); f != nil {
		back = append(back, "Tasting notes: "+*f+".")
	}
	if n := domain.TrimmedOrNil(b.Narrative); n != nil {
		back = append(back, *n)
	}

	return Copy{
		FrontCopy:           front,
		BackCopy:            strings.Join(back, "\n\n"),
		ComplianceStatement: GovernmentWarning,
	}
}
