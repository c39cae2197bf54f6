package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/config"
	"github.com/restyleworks/restyle/internal/logger"
	"github.com/restyleworks/restyle/internal/observability"
	"github.com/restyleworks/restyle/internal/server"
	"github.com/restyleworks/restyle/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
