package callbackauth

import (
	"github.com/smallbiznis/vouchr/internal/callbackauth/repository"
	"github.com/smallbiznis/vouchr/internal/callbackauth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("callbackauth",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
