package billing

import (
	"github.com/smallbiznis/papermill/internal/billing/repository"
	"github.com/smallbiznis/papermill/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
