package commands

import (
	"context"
	"fmt"
)

type StatusCmd struct {
	backendFlags
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(ctx, globals, s.backendFlags)
	if err != nil {
		return err
	}

	identity := app.autoLogin.TryRestore(ctx)
	if identity == nil {
		fmt.Println("Not signed in.")
		return nil
	}

	fmt.Printf("Signed in as %s\n", identity.DisplayName)
	if identity.Email != "" {
		fmt.Printf("  email: %s\n", identity.Email)
	}
	if identity.Phone != "" {
		fmt.Printf("  phone: %s\n", identity.Phone)
	}
	fmt.Printf("  plays remaining: %d\n", identity.PlaysRemaining)

	return nil
}
