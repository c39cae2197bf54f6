package storage

import (
	"github.com/restyleworks/restyle/internal/config"
	"go.uber.org/fx"
)

// Module provides the image object store.
var Module = fx.Module("storage",
	fx.Provide(
		func(cfg config.Config) (ObjectStore, error) {
			return NewMinioStore(
				cfg.Storage.Endpoint,
				cfg.Storage.AccessKey,
				cfg.Storage.SecretKey,
				cfg.Storage.Bucket,
				cfg.Storage.UseSSL,
			)
		},
	),
)
