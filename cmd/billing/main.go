package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/webafza/billing/internal/config"
	"github.com/webafza/billing/internal/migration"
	"github.com/webafza/billing/internal/observability"
	"github.com/webafza/billing/internal/server"
	"github.com/webafza/billing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
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
