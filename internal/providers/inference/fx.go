package inference

import (
	"github.com/restyleworks/restyle/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the inference provider client.
var Module = fx.Module("inference",
	fx.Provide(
		func(cfg config.Config, log *zap.Logger) Client {
			return NewReplicateClient(ReplicateOptions{
				BaseURL:    cfg.Inference.BaseURL,
				Token:      cfg.Inference.Token,
				Model:      cfg.Inference.Model,
				WebhookURL: cfg.Inference.WebhookURL,
			}, log)
		},
	),
)
