package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func newProviderWithLifecycle(lc fx.Lifecycle, cfg *config.Config) (*GormProvider, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.App.System.Logging.Level == "DEBUG" || cfg.App.System.Logging.Level == "TRACE" {
		p.SetLogLevel("INFO")
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.CloseAll()
		},
	})
	return p, nil
}

// Module provides *GormProvider, also as database.DBProvider.
// Dialects are registered by importing the sqlite, mysql or postgres subpackage.
var Module = fx.Options(
	fx.Provide(
		newProviderWithLifecycle,
		func(p *GormProvider) database.DBProvider { return p },
	),
)
