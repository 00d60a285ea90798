package catalog

import (
	"github.com/smallbiznis/commissary/internal/catalog/client"
	"github.com/smallbiznis/commissary/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(client.New),
	fx.Provide(service.NewService),
)
