package wampAPI

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const DEFAULT_SHUTDOWN_TIMEOUT = 5 * time.Second

// ListenAndServe serves handler on address until ctx is done
func ListenAndServe(ctx context.Context, address string, handler http.Handler, logger *slog.Logger) error {
	listener, e := net.Listen("tcp", address)
	if e != nil {
		return e
	}
	return Serve(ctx, listener, handler, logger)
}

func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	server := http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	served := make(chan error, 1)
	go func() {
		served <- server.Serve(listener)
	}()
	logger.Info("http listening", "address", listener.Addr().String())

	select {
	case e := <-served:
		return e
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DEFAULT_SHUTDOWN_TIMEOUT)
	defer cancel()
	e := server.Shutdown(shutdownCtx)
	<-served
	if e != nil && !errors.Is(e, http.ErrServerClosed) {
		return e
	}
	return nil
}
