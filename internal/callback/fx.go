package callback

import (
	"github.com/smallbiznis/vouchr/internal/callback/repository"
	"github.com/smallbiznis/vouchr/internal/callback/service"
	"go.uber.org/fx"
)

var Module = fx.Module("callback",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
