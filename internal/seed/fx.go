package seed

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("seed",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Seeder) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				_, err := s.Run(ctx)
				return err
			},
		})
	}),
)
