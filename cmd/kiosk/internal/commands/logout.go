package commands

import (
	"context"
	"fmt"

	"github.com/bloticlabs/arena-kiosk/internal/authstate"
)

// LogoutCmd clears the persisted login without touching the backend;
// session records expire server-side.
type LogoutCmd struct {
	StateDir string `help:"Directory holding the persisted login record." env:"ARENA_STATE_DIR"`
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	state, err := authstate.NewStore(l.StateDir)
	if err != nil {
		return err
	}

	if err := state.Clear(); err != nil {
		return err
	}

	fmt.Println("Signed out.")

	return nil
}
