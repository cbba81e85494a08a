package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bloticlabs/arena-kiosk/internal/auth"
)

type LoginCmd struct {
	backendFlags

	Fresh bool `help:"Skip auto-login and force a fresh QR session."`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(ctx, globals, l.backendFlags)
	if err != nil {
		return err
	}

	if !l.Fresh {
		if identity := app.autoLogin.TryRestore(ctx); identity != nil {
			app.manager.Adopt(identity)
			fmt.Printf("Welcome back, %s. Plays remaining: %d\n", identity.DisplayName, identity.PlaysRemaining)
			return nil
		}
		log.Debug().Msg("no auto-login, starting QR handshake")
	}

	sessionID, err := app.manager.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("could not start a login session: %w", err)
	}

	fmt.Println("Scan this link with your phone to sign in:")
	fmt.Println("  " + app.manager.LoginURL(sessionID))

	app.manager.StartPolling(ctx)
	defer app.manager.StopPolling()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-app.manager.Events():
		switch ev.Type {
		case auth.EventAuthenticated:
			fmt.Printf("Signed in as %s. Plays remaining: %d\n", ev.Identity.DisplayName, ev.Identity.PlaysRemaining)
			return nil
		case auth.EventFailed:
			return fmt.Errorf("authentication failed: %w", ev.Err)
		default:
			return fmt.Errorf("login session expired, run login again")
		}
	}
}
