package credential

import (
	"github.com/smallbiznis/sentra/internal/credential/repository"
	"github.com/smallbiznis/sentra/internal/credential/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credential.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
