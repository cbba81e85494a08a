package commands

import (
	"context"
	"fmt"

	"github.com/bloticlabs/arena-kiosk/internal/auth"
	"github.com/bloticlabs/arena-kiosk/internal/authstate"
	"github.com/bloticlabs/arena-kiosk/internal/backend"
	"github.com/bloticlabs/arena-kiosk/internal/config"
	"github.com/bloticlabs/arena-kiosk/internal/quota"
)

type Globals struct {
	Debug      bool
	Version    string
	ConfigPath string
}

// backendFlags are the connection settings shared by every command.
// Flags override the config file, which overrides defaults.
type backendFlags struct {
	BackendURL string `help:"Backend project URL." env:"ARENA_BACKEND_URL"`
	BackendKey string `help:"Backend anonymous API key." env:"ARENA_BACKEND_KEY"`
	PortalURL  string `help:"Public portal host encoded into QR login URLs." env:"ARENA_PORTAL_URL"`
	StateDir   string `help:"Directory holding the persisted login record." env:"ARENA_STATE_DIR"`
}

// app wires the session components the way a UI shell would own them:
// explicitly constructed, no global service instances.
type app struct {
	cfg       config.Config
	client    *backend.Client
	state     *authstate.Store
	quota     *quota.Resolver
	manager   *auth.Manager
	autoLogin *auth.AutoLogin
}

func newApp(ctx context.Context, globals *Globals, flags backendFlags) (*app, error) {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, err
	}

	if flags.BackendURL != "" {
		cfg.BackendURL = flags.BackendURL
	}
	if flags.BackendKey != "" {
		cfg.BackendKey = flags.BackendKey
	}
	if flags.PortalURL != "" {
		cfg.PortalURL = flags.PortalURL
	}
	if flags.StateDir != "" {
		cfg.StateDir = flags.StateDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := backend.New(backend.Config{URL: cfg.BackendURL, Key: cfg.BackendKey})
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("backend unreachable, check connectivity: %w", err)
	}

	state, err := authstate.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	resolver := quota.NewResolver(client)

	manager := auth.NewManager(client, resolver, state, auth.Options{
		SessionTTL:   cfg.SessionTTL(),
		PollInterval: cfg.PollInterval(),
		PortalURL:    cfg.PortalURL,
	})

	return &app{
		cfg:       cfg,
		client:    client,
		state:     state,
		quota:     resolver,
		manager:   manager,
		autoLogin: auth.NewAutoLogin(client, resolver, state),
	}, nil
}
