package partner

import (
	"github.com/smallbiznis/commissary/internal/partner/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("partner.registry",
	fx.Provide(repository.Provide),
)
