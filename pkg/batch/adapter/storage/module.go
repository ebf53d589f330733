package storage

import (
	"context"

	"go.uber.org/fx"

	coreconfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func newProviderWithLifecycle(lc fx.Lifecycle, cfg *coreconfig.Config) (*ConnectionProvider, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.CloseAll() }})
	return p, nil
}

// Module provides storage.Provider. Backends are registered by importing
// the local or gcs subpackage.
var Module = fx.Provide(
	fx.Annotate(newProviderWithLifecycle, fx.As(new(Provider))),
)
