package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pieces/internal/engine"
	"pieces/internal/loader"
	"pieces/internal/piece"
	"pieces/internal/server"
	"pieces/internal/types"
)

var serveEnableAll bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and the poller",
	Long: "Serves webhook deliveries for enabled WEBHOOK instances and polls enabled\n" +
		"POLLING instances every poll interval. Emitted items are printed as JSON lines.",
	Args: cobra.NoArgs,
	RunE: serveInstances,
}

func init() {
	flags := serveCmd.Flags()
	flags.Int("port", 8080, "port to listen on")
	flags.Duration("poll-interval", 0, "interval between polls (default from config)")
	flags.BoolVar(&serveEnableAll, "enable-all", false, "enable every instance that is not enabled yet before serving")
	viper.BindPFlag("server.port", flags.Lookup("port"))
	viper.BindPFlag("poll.interval", flags.Lookup("poll-interval"))
	rootCmd.AddCommand(serveCmd)
}

func serveInstances(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	var polling []*types.InstanceDef
	for _, inst := range loader.Sorted(h.instances) {
		if err := engine.ValidateInstance(inst, h.registry); err != nil {
			return fmt.Errorf("instance %q: %w", inst.Name, err)
		}
		if serveEnableAll {
			if err := enableIfNeeded(ctx, h, inst); err != nil {
				return err
			}
		}
		t, err := h.registry.Trigger(inst.Piece, inst.Trigger)
		if err != nil {
			return err
		}
		if t.Meta().Strategy == piece.StrategyPolling {
			polling = append(polling, inst)
		}
	}

	srv := server.NewWebhookServer(h.engine, h.instances)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	fmt.Printf("Starting webhook server on %s\n", addr)
	fmt.Printf("Loaded %d instance(s), %d polling every %s\n", len(h.instances), len(polling), cfg.Poll.Interval)
	for _, inst := range loader.Sorted(h.instances) {
		t, _ := h.registry.Trigger(inst.Piece, inst.Trigger)
		if t.Meta().Strategy == piece.StrategyWebhook {
			fmt.Printf("  POST %s -> %s\n", inst.WebhookPath(), inst.Name)
		}
	}

	out := json.NewEncoder(os.Stdout)
	poller := &engine.Poller{
		Engine:    h.engine,
		Instances: polling,
		Interval:  cfg.Poll.Interval,
		OnResult: func(r *types.TriggerResult) {
			if err := out.Encode(r); err != nil {
				logger.WithError(err).Warn("writing poll result")
			}
		},
	}
	go poller.Start(ctx)

	return srv.ListenAndServe(ctx, addr)
}

func enableIfNeeded(ctx context.Context, h *host, inst *types.InstanceDef) error {
	enabled, err := h.engine.IsEnabled(ctx, inst)
	if err != nil {
		return err
	}
	if enabled {
		return nil
	}
	if _, err := h.engine.Enable(ctx, inst); err != nil {
		return fmt.Errorf("enabling %q: %w", inst.Name, err)
	}
	fmt.Printf("%s enabled %s\n", color.GreenString("✓"), inst.Name)
	return nil
}
