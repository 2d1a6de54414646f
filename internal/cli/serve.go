// Package cli holds the cobra subcommands behind the filefleet binary.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tealstack/filefleet/internal/bot"
	"github.com/tealstack/filefleet/internal/config"
	"github.com/tealstack/filefleet/internal/dialog"
	"github.com/tealstack/filefleet/internal/ephemeral"
	"github.com/tealstack/filefleet/internal/fleet"
	"github.com/tealstack/filefleet/internal/gate"
	"github.com/tealstack/filefleet/internal/gateway"
	"github.com/tealstack/filefleet/internal/store"
	"github.com/tealstack/filefleet/internal/telemetry"
)

// ServeCommand builds the serve subcommand: bring the primary bot and
// every active clone online and run until interrupted.
func ServeCommand(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the primary bot and all registered clones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	log := telemetry.Component("serve")

	reg, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer reg.Close()

	deps := bot.Deps{
		Store:         reg,
		Gate:          gate.New(telemetry.Component("gate")),
		Dialogs:       dialog.NewManager(reg, cfg.DialogTimeout, telemetry.Component("dialog")),
		Ephemeral:     ephemeral.New(telemetry.Component("ephemeral")),
		StorageChatID: cfg.StorageChatID,
		LinkHost:      cfg.LinkHost,
		Log:           telemetry.Component("bot"),
	}

	gw := gateway.NewTelegram(telemetry.Component("gateway"))
	mgr := fleet.NewManager(gw, reg, bot.NewCloneFactory(deps),
		fleet.WithElevated(cfg.OwnerIDs),
		fleet.WithLogger(telemetry.Component("fleet")),
	)

	primary := bot.NewPrimary(deps, mgr, cfg.OwnerIDs)
	if err := primary.Start(ctx, gw, cfg.BotToken); err != nil {
		return err
	}

	started, failed := mgr.RestartAll(ctx)
	log.WithField("started", started).WithField("failed", failed).Info("fleet online")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	primary.Stop()
	mgr.Shutdown()
	return nil
}
