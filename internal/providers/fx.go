package providers

import (
	"github.com/smallbiznis/vouchr/internal/providers/email"
	"github.com/smallbiznis/vouchr/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
