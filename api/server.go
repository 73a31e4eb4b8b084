// Package api exposes dispatch run records and clearing prices over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/iesdispatch/api/prices"
	"github.com/kilianp07/iesdispatch/api/runs"
	"github.com/kilianp07/iesdispatch/core/dispatch/logging"
	"github.com/kilianp07/iesdispatch/infra/logger"
)

// NewMux mounts the run log endpoint and, when stacks is non-nil, the
// clearing price endpoint.
func NewMux(store logging.LogStore, token string, stacks prices.StackSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/runs", runs.NewLogHandler(store, token))
	if stacks != nil {
		mux.Handle("/api/prices", prices.NewClearingHandler(stacks))
	}
	return mux
}

// Serve runs an HTTP server for h on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	log := logger.New("api")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api server shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
