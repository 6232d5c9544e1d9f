package delivery

import (
	"github.com/smallbiznis/vouchr/internal/delivery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery",
	fx.Provide(service.NewDispatcher),
)
