package oplog

import (
	"github.com/smallbiznis/papermill/internal/oplog/repository"
	"github.com/smallbiznis/papermill/internal/oplog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("oplog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
