package subscription

import (
	"github.com/smallbiznis/backoffice/internal/subscription/domain"
	"github.com/smallbiznis/backoffice/internal/subscription/repository"
	"github.com/smallbiznis/backoffice/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.Provisioner { return s },
	),
)
