package role

import (
	"github.com/smallbiznis/backoffice/internal/role/repository"
	"github.com/smallbiznis/backoffice/internal/role/service"
	"go.uber.org/fx"
)

var Module = fx.Module("role.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
