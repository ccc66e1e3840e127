package copygen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
)

// Generator turns briefs into copy. A nil provider always uses the template.
type Generator struct {
	provider Provider
	timeout  time.Duration
	log      *logger.Logger
	m        *metrics.Metrics
}

func NewGenerator(p Provider, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Generator {
	return &Generator{provider: p, timeout: timeout, log: log.Component("copygen"), m: m}
}

// Generate returns copy for b. Provider failures fall back to the template, so the
// only error is a *domain.ValidationError for an incomplete brief.
func (g *Generator) Generate(ctx context.Context, b Brief) (Copy, Source, error) {
	if err := b.Validate(); err != nil {
		return Copy{}, "", err
	}
	if g.provider == nil {
		return g.fallback(b), SourceFallback, nil
	}

	c, err := g.fromProvider(ctx, b)
	if err != nil {
		g.log.Warn().Err(err).Str("brand", b.BrandName).Msg("copy provider unusable, using template")
		return g.fallback(b), SourceFallback, nil
	}
	g.m.CopyGenerationsTotal.WithLabelValues(string(SourceProvider)).Inc()
	return c, SourceProvider, nil
}

func (g *Generator) fallback(b Brief) Copy {
	g.m.CopyGenerationsTotal.WithLabelValues(string(SourceFallback)).Inc()
	return Fallback(b)
}

func (g *Generator) fromProvider(ctx context.Context, b Brief) (Copy, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.provider.Complete(ctx, Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   BuildUserPrompt(b),
		Temperature:  0.7,
		JSON:         true,
	})
	if err != nil {
		return Copy{}, &domain.AdapterError{Op: "complete", Err: err}
	}
	c, err := ParseCopy(resp.Content)
	if err != nil {
		return Copy{}, &domain.AdapterError{Op: "parse", Err: err}
	}
	return c, nil
}

// providerCopy accepts both naming conventions seen in model output.
type providerCopy struct {
	FrontCopy                string `json:"front_copy"`
	FrontCopyCamel           string `json:"frontCopy"`
	FrontLabel               string `json:"frontLabel"`
	BackCopy                 string `json:"back_copy"`
	BackCopyCamel            string `json:"backCopy"`
	BackLabel                string `json:"backLabel"`
	ComplianceStatement      string `json:"compliance_statement"`
	ComplianceStatementCamel string `json:"complianceStatement"`
}

// ParseCopy reads provider output. Front and back copy are required; a missing
// compliance statement becomes GovernmentWarning.
func ParseCopy(text string) (Copy, error) {
	text = stripFences(text)
	var raw providerCopy
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Copy{}, err
	}
	c := Copy{
		FrontCopy:           firstNonBlank(raw.FrontCopy, raw.FrontCopyCamel, raw.FrontLabel),
		BackCopy:            firstNonBlank(raw.BackCopy, raw.BackCopyCamel, raw.BackLabel),
		ComplianceStatement: firstNonBlank(raw.ComplianceStatement, raw.ComplianceStatementCamel, GovernmentWarning),
	}
	if c.FrontCopy == "" || c.BackCopy == "" {
		return Copy{}, errors.New("front or back copy missing")
	}
	return c, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
