// Package platform provides the messaging platform selected by
// configuration.
package platform

import (
	"context"

	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/rohankhatri7/rohanbot/internal/config"
	"github.com/rohankhatri7/rohanbot/internal/platform/discord"
	"github.com/rohankhatri7/rohanbot/internal/platform/telegram"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Config *config.Config
	Logger zerolog.Logger
}

type Result struct {
	fx.Out

	Platform bot.Platform
}

// session is a platform connection with a lifecycle.
type session interface {
	bot.Platform
	Open(ctx context.Context) error
	Close() error
}

func New(lc fx.Lifecycle, p Params) (Result, error) {
	var (
		s   session
		err error
	)

	switch p.Config.Platform {
	case config.PlatformTelegram:
		s, err = telegram.New(p.Config.Token(), p.Logger)
	default:
		s, err = discord.New(p.Config.Token(), p.Logger)
	}
	if err != nil {
		return Result{}, err
	}

	lc.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				p.Logger.Info().Str("platform", p.Config.Platform).Msg("connecting to platform...")
				return s.Open(ctx)
			},
			OnStop: func(ctx context.Context) error {
				p.Logger.Info().Str("platform", p.Config.Platform).Msg("closing platform connection")
				return s.Close()
			},
		},
	)

	return Result{Platform: s}, nil
}

func Module() fx.Option {
	return fx.Module(
		"platform",
		fx.Provide(New),
	)
}
