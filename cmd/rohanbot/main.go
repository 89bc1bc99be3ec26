package main

import (
	"github.com/ipfans/fxlogger"
	"github.com/rohankhatri7/rohanbot/internal/backend"
	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/rohankhatri7/rohanbot/internal/config"
	"github.com/rohankhatri7/rohanbot/internal/log"
	"github.com/rohankhatri7/rohanbot/internal/platform"
	"go.uber.org/fx"
)

func main() {

	fx.New(
		fx.WithLogger(fxlogger.WithZerolog(log.NewLogger())),
		config.Module(),
		log.Module(),
		platform.Module(),
		backend.Module(),
		bot.Module(),
	).Run()
}
