// Package launcher runs the selected game binary after a play has been
// consumed, streaming its console output into the kiosk log.
package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	consolestream "github.com/wolfeidau/console-stream"
)

// Game describes an executable the kiosk can launch. Discovery of
// installed games is the presentation layer's concern; this package
// only runs what it is handed.
type Game struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Result reports how a game process ended.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Launcher executes game processes.
type Launcher struct{}

// New creates a launcher.
func New() *Launcher {
	return &Launcher{}
}

// Play runs the game until it exits and returns its result. The caller
// is expected to have consumed a play first; a launch failure after a
// consume is reported, never retried here.
func (l *Launcher) Play(ctx context.Context, game Game) (*Result, error) {
	log.Info().Str("game", game.Name).Str("command", game.Command).Msg("launching game")

	opts := []consolestream.ProcessOption{
		consolestream.WithEnvMap(game.Env),
		consolestream.WithFlushInterval(3 * time.Second),
		consolestream.WithPTYMode(),
	}

	process := consolestream.NewProcess(game.Command, game.Args, opts...)

	for event, err := range process.ExecuteAndStream(ctx) {
		if err != nil {
			return nil, fmt.Errorf("game execution failed: %w", err)
		}

		switch e := event.Event.(type) {
		case *consolestream.ProcessStart:
			log.Debug().Str("game", game.Name).Int("pid", e.PID).Msg("game process started")

		case *consolestream.OutputData:
			log.Debug().Str("game", game.Name).Int("bytes", len(e.Data)).Msg("game output")

		case *consolestream.ProcessEnd:
			log.Info().
				Str("game", game.Name).
				Int("exit_code", e.ExitCode).
				Dur("duration", e.Duration).
				Msg("game process ended")
			return &Result{ExitCode: e.ExitCode, Duration: e.Duration}, nil
		}
	}

	return nil, fmt.Errorf("game process ended without a result")
}
