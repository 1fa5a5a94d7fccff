package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/tui"
)

var uiLocal bool

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Opens the interactive terminal UI for browsing notification configurations,
sent history and templates. When a gateway is running on the configured port
the UI reads live state from it; otherwise it shows the local registry.`,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().BoolVar(&uiLocal, "local", false, "ignore a running gateway and show the local registry")
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc, err := buildServices(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	var backend tui.Backend = tui.Local{Registry: svc.registry}
	if !uiLocal {
		port := cfg.Gateway.Port
		if port == 0 {
			port = config.DefaultGatewayPort
		}
		client := tui.NewGatewayClient(fmt.Sprintf("http://127.0.0.1:%d", port))
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := client.Ping(pingCtx); err == nil {
			backend = client
		}
		cancel()
	}

	app := tui.NewApp(backend, svc.engine)
	return app.Run()
}
