package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/papermill/internal/clock"
	"github.com/smallbiznis/papermill/internal/config"
	"github.com/smallbiznis/papermill/internal/migration"
	"github.com/smallbiznis/papermill/internal/observability"
	"github.com/smallbiznis/papermill/internal/scheduler"
	"github.com/smallbiznis/papermill/internal/server"
	"github.com/smallbiznis/papermill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
