package deal

import (
	"github.com/smallbiznis/vouchr/internal/deal/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("deal",
	fx.Provide(repository.Provide),
)
