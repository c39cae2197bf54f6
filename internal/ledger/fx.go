package ledger

import (
	"github.com/restyleworks/restyle/internal/ledger/repository"
	"github.com/restyleworks/restyle/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
