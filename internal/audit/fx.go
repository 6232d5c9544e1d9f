package audit

import (
	"github.com/smallbiznis/vouchr/internal/audit/repository"
	"github.com/smallbiznis/vouchr/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
