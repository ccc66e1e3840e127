package copygen

import (
	"strconv"
	"strings"
)

const systemPrompt = "You write compliant, marketing-grade spirits label copy."

// BuildUserPrompt renders the brief as the user message of a completion request.
func BuildUserPrompt(b Brief) string {
	lines := []string{
		"Write premium US spirits label copy.",
		"Brand: " + strings.TrimSpace(b.BrandName),
		"Product: " + strings.TrimSpace(b.ProductName),
		"Type: " + strings.TrimSpace(b.Category),
		"ABV: " + formatStrength(b.Strength) + "%",
		"Volume: " + strconv.Itoa(b.VolumeML) + "ml",
		"Tone/style: " + b.tone(),
	}
	optional := []struct {
		label string
		v     *string
	}{
		{"Region", b.Region},
		{"Flavor notes", b.FlavorNotes},
		{"Brand story", b.Narrative},
		{"Additional notes", b.ExtraNotes},
	}
	for _, o := range optional {
		if o.v != nil && strings.TrimSpace(*o.v) != "" {
			lines = append(lines, o.label+": "+strings.TrimSpace(*o.v))
		}
	}
	lines = append(lines, "",
		`Return a JSON object with keys "front_copy", "back_copy" and optionally "compliance_statement". No markdown.`)
	return strings.Join(lines, "\n")
}
