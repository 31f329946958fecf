package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lvillar/pdfstamp"
)

// RunWithGracefulShutdown serves until SIGINT or SIGTERM, then runs cleanup
// and gives in-flight requests up to timeout to finish.
func RunWithGracefulShutdown(server *http.Server, appName string, cleanup func(), timeout time.Duration) error {
	log := pdfstamp.Logger()
	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", "app", appName, "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case err := <-serverErr:
		// Listening failed before any signal arrived.
		if cleanup != nil {
			cleanup()
		}
		return err
	case sig := <-sigs:
		log.Info("shutting down", "app", appName, "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if cleanup != nil {
		cleanup()
	}
	if err := <-serverErr; err != nil {
		return err
	}
	log.Info("shutdown complete", "app", appName)
	return nil
}
