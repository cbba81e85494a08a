package commands

import (
	"context"
	"fmt"

	"github.com/bloticlabs/arena-kiosk/internal/launcher"
)

type PlayCmd struct {
	backendFlags

	Name    string   `help:"Display name of the game." default:"game"`
	Command string   `arg:"" optional:"" help:"Game executable to launch after consuming a play."`
	Args    []string `arg:"" optional:"" help:"Arguments passed to the game."`
}

func (p *PlayCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(ctx, globals, p.backendFlags)
	if err != nil {
		return err
	}

	identity := app.autoLogin.TryRestore(ctx)
	if identity == nil {
		return fmt.Errorf("not signed in, run login first")
	}
	app.manager.Adopt(identity)

	newCount, ok := app.manager.ConsumePlay(ctx)
	if !ok {
		fmt.Println("No plays remaining. Purchase more plays or register for another event.")
		return nil
	}

	fmt.Printf("Play consumed. Plays remaining: %d\n", newCount)

	if p.Command == "" {
		return nil
	}

	result, err := launcher.New().Play(ctx, launcher.Game{
		Name:    p.Name,
		Command: p.Command,
		Args:    p.Args,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Game exited with code %d after %s\n", result.ExitCode, result.Duration)

	return nil
}
