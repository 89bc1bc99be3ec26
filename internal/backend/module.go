package backend

import (
	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/rohankhatri7/rohanbot/internal/config"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Params for creating a backend
type Params struct {
	fx.In

	Config *config.Config
	Logger zerolog.Logger
}

// Result of creating a backend
type Result struct {
	fx.Out

	Streamer  bot.Streamer
	Completer bot.Completer
}

type driver interface {
	bot.Streamer
	bot.Completer
}

// New creates the backend selected by configuration
func New(p Params) (Result, error) {
	var (
		d   driver
		err error
	)

	system := p.Config.SystemPrompt()

	switch p.Config.Backend {
	case config.BackendOllama:
		d, err = NewOllama(p.Config.OllamaURL, p.Config.Model, system)
	case config.BackendOpenAI:
		d, err = NewOpenAI(p.Config.APIKey, p.Config.BaseURL, p.Config.Model, system)
	default:
		d, err = NewHTTP(p.Config.APIURL, system, p.Logger)
	}
	if err != nil {
		return Result{}, err
	}

	p.Logger.Info().Str("backend", p.Config.Backend).Msg("backend configured")

	return Result{
		Streamer:  d,
		Completer: d,
	}, nil
}

// Module provides the backend Streamer and Completer
func Module() fx.Option {
	return fx.Module(
		"backend",
		fx.Provide(
			New,
		),
	)
}
