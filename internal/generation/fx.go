package generation

import (
	"github.com/restyleworks/restyle/internal/generation/repository"
	"github.com/restyleworks/restyle/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
