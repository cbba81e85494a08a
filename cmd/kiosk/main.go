package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/bloticlabs/arena-kiosk/cmd/kiosk/internal/commands"
	"github.com/bloticlabs/arena-kiosk/internal/logger"
	"github.com/bloticlabs/arena-kiosk/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login  commands.LoginCmd  `cmd:"" help:"Create a QR login session and wait for the phone to confirm"`
		Status commands.StatusCmd `cmd:"" help:"Show the signed-in user and plays remaining"`
		Play   commands.PlayCmd   `cmd:"" help:"Consume one play and launch a game"`
		Logout commands.LogoutCmd `cmd:"" help:"Sign out and clear the saved login"`

		Config  string `help:"Path to the kiosk config file." default:"~/.arena-kiosk/config.yaml" type:"path"`
		Debug   bool   `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	shutdown, err := telemetry.InitTelemetry(ctx, "arena-kiosk", version)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry disabled")
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("telemetry shutdown failed")
			}
		}()
	}

	err = cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, ConfigPath: cli.Config})
	cmd.FatalIfErrorf(err)
}
