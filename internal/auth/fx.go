package auth

import (
	"github.com/smallbiznis/backoffice/internal/auth/repository"
	"github.com/smallbiznis/backoffice/internal/auth/service"
	"github.com/smallbiznis/backoffice/internal/auth/session"
	"go.uber.org/fx"
)

// Module provides login sessions: the session store, the auth service and
// the cookie manager used by the HTTP layer.
var Module = fx.Module("auth",
	fx.Provide(
		repository.New,
		service.New,
		session.NewManager,
	),
)
