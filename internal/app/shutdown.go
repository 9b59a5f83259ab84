package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Stop the fibers first so nothing writes through the store or the
	// venues while they close.
	a.supervisor.Stop()
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("store-close-error", zap.Error(err))
	}

	for _, set := range a.caches {
		set.Close()
	}

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")
	return nil
}
