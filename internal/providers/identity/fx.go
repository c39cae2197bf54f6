package identity

import (
	"github.com/restyleworks/restyle/internal/config"
	"go.uber.org/fx"
)

// Module provides the bearer token verifier.
var Module = fx.Module("identity",
	fx.Provide(
		func(cfg config.Config) (*Verifier, error) {
			return NewVerifier(cfg.AuthJWTSecret)
		},
	),
)
