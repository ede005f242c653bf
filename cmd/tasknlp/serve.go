package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasknlp/internal/audit"
	"tasknlp/internal/config"
	"tasknlp/internal/server"
)

const shutdownTimeout = 5 * time.Second

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	auditLogger, err := audit.NewJSONLLogger(cfg.Log.AuditFile)
	if err != nil {
		return err
	}

	svc, err := loadServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.Create(&server.State{
		Analyzer:  svc.Orchestrator,
		Audit:     auditLogger,
		AuditFile: auditLogger.Path(),
		Config:    cfg.Server,
		Timeout:   cfg.Inference.Timeout,
		Started:   time.Now().UTC(),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on: %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Infof("received signal %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
