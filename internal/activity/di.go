package activity

import (
	"github.com/foxseedlab/dmzstatus/internal/config"
	"github.com/foxseedlab/dmzstatus/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Tracker, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		return NewTracker(repo, cfg.PersistTimeout), nil
	})
}
