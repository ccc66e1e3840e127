package labels

import (
	"context"
	"errors"

	"example.com/labelengine/internal/copygen"
	"example.com/labelengine/internal/domain"
)

type GenerateInput struct {
	LabelID *int64
	Brief   copygen.Brief
}

// GenerateResult carries the generated copy. Persisted is false when the copy could
// not be stored; Result is then empty apart from the requested label id.
type GenerateResult struct {
	Result
	Persisted bool           `json:"persisted"`
	Copy      copygen.Copy   `json:"copy"`
	Source    copygen.Source `json:"source"`
}

// Generate produces copy for the brief and persists brief plus copy as a Version.
// Without a configured generator the template copy is used. Invalid input fails the
// call; any other persistence failure is logged and the copy is still returned.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	if in.LabelID != nil {
		if err := domain.CheckFields(domain.ValidateID("label_id", *in.LabelID)); err != nil {
			return GenerateResult{}, err
		}
	}
	var (
		c   copygen.Copy
		src copygen.Source
		err error
	)
	if s.gen != nil {
		c, src, err = s.gen.Generate(ctx, in.Brief)
	} else if err = in.Brief.Validate(); err == nil {
		c, src = copygen.Fallback(in.Brief), copygen.SourceFallback
	}
	if err != nil {
		return GenerateResult{}, err
	}

	res, err := s.CreateOrUpdate(ctx, in.LabelID, c.Apply(in.Brief.Content()))
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return GenerateResult{}, err
	}
	if err != nil {
		res = Result{}
		ev := s.log.Warn().Err(err).Str("brand", in.Brief.BrandName)
		if in.LabelID != nil {
			ev = ev.Int64("label_id", *in.LabelID)
			res = Result{LabelID: *in.LabelID}
		}
		ev.Msg("generated copy not persisted")
		return GenerateResult{Result: res, Copy: c, Source: src}, nil
	}
	return GenerateResult{Result: res, Persisted: true, Copy: c, Source: src}, nil
}
