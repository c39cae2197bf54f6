package unlock

import (
	"github.com/restyleworks/restyle/internal/unlock/service"
	"go.uber.org/fx"
)

var Module = fx.Module("unlock",
	fx.Provide(service.New),
)
