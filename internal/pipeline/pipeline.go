package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"dataresource/internal/resource"
)

// Transform reads r, applies steps in order and returns the result as an
// inline resource with a freshly inferred schema.
func Transform(ctx context.Context, r *resource.Resource, steps ...Step) (*resource.Resource, error) {
	t, err := ReadTable(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Name(), err)
	}
	rowsIn := len(t.Rows)

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.Apply(t); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	out, err := resource.New(t.Grid(), resource.WithName(r.Name()))
	if err != nil {
		return nil, err
	}
	if err := out.Infer(ctx, resource.InferOptions{}); err != nil {
		return nil, fmt.Errorf("infer result: %w", err)
	}

	log.Debug().
		Str("name", r.Name()).
		Int("steps", len(steps)).
		Int("rows_in", rowsIn).
		Int("rows_out", len(t.Rows)).
		Msg("pipeline: transformed")
	return out, nil
}
