package eligibility

import (
	"github.com/smallbiznis/vouchr/internal/eligibility/service"
	"go.uber.org/fx"
)

var Module = fx.Module("eligibility",
	fx.Provide(service.NewService),
)
