package user

import (
	"github.com/restyleworks/restyle/internal/user/repository"
	"github.com/restyleworks/restyle/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
