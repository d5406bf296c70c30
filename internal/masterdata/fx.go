package masterdata

import (
	"github.com/smallbiznis/crateflow/internal/masterdata/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("masterdata.repository",
	fx.Provide(repository.Provide),
)
