package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/config"
	"github.com/bryan-buckman/feedkeeper/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auto-update loop and the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(cmdCtx context.Context, ctx *commandContext, cmd *cobra.Command, addr string) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	lockPath := lockFilePath(cfg)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another feedkeeper instance is already serving this database")
	}
	defer lock.Unlock()

	a, err := ctx.openApp(signalCtx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	a.logger.Info("Feedkeeper starting",
		"database", a.store.DatabaseType(),
		"feeds", a.registry.Len(),
		"global_interval", a.scheduler.GlobalInterval(),
		"lock", lockPath)

	a.coordinator.Start(signalCtx)
	defer a.coordinator.Stop()

	srv := server.New(server.Deps{
		Store:       a.store,
		Registry:    a.registry,
		Scheduler:   a.scheduler,
		Manager:     a.manager,
		Coordinator: a.coordinator,
		Client:      a.client,
		Logger:      a.logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-signalCtx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	return <-errCh
}

// lockFilePath places the lock beside a SQLite database, or in the temp
// directory for a server database.
func lockFilePath(cfg *config.Config) string {
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path != ":memory:" {
		return cfg.Database.Path + ".lock"
	}
	return filepath.Join(os.TempDir(), "feedkeeper.lock")
}
