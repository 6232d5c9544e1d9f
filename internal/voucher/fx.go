package voucher

import (
	"github.com/smallbiznis/vouchr/internal/voucher/repository"
	"github.com/smallbiznis/vouchr/internal/voucher/service"
	"go.uber.org/fx"
)

var Module = fx.Module("voucher",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
