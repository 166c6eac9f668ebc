package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/gateway"
)

// newServeCmd creates `sqlfront serve`.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbench as an HTTP/JSON API",
		Long: `Start the HTTP gateway. Open connections are kept between requests
and closed after database.idle_timeout without use.

Examples:
  sqlfront serve
  sqlfront serve --address 127.0.0.1:9000
  SQLFRONT_GATEWAY_TOKEN=secret sqlfront serve --config ./sqlfront.yaml`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "listen address (overrides gateway.address)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	gwCfg := a.cfg.Gateway
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		gwCfg.Address = addr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// ── Gateway ──
	gw := gateway.New(a.workbench, gwCfg, logger)
	gw.SetHistory(a.history)
	gw.SetNotes(a.notes)
	if store := a.keystore(); store != nil {
		gw.SetKeystore(store)
	}
	if err := gw.Start(ctx); err != nil {
		return err
	}

	// ── Idle connection janitor ──
	janitor := database.NewJanitor(a.registry, logger)
	if err := janitor.Start(); err != nil {
		logger.Error("failed to start janitor", "error", err)
	}

	logger.Info("sqlfront running. Press Ctrl+C to stop.",
		"address", gwCfg.Address,
		"config", a.configPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	janitor.Stop(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}
