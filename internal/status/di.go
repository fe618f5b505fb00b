package status

import (
	"github.com/coder/quartz"
	"github.com/foxseedlab/dmzstatus/internal/activity"
	"github.com/foxseedlab/dmzstatus/internal/config"
	"github.com/foxseedlab/dmzstatus/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Board, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tracker := do.MustInvoke[*activity.Tracker](i)
		dc := do.MustInvoke[discord.Client](i)
		clk := do.MustInvoke[quartz.Clock](i)
		return NewBoard(cfg, tracker, dc, clk), nil
	})
}
