package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissary/internal/config"
	"github.com/smallbiznis/commissary/internal/migration"
	"github.com/smallbiznis/commissary/internal/server"
	"github.com/smallbiznis/commissary/pkg/db"
	"github.com/smallbiznis/commissary/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
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
