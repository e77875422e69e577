// Package bootstrap wires the bootstrap subsystems together.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/deepgrid/gpu-bootstrap/internal/config"
	"github.com/deepgrid/gpu-bootstrap/internal/models"
	"github.com/deepgrid/gpu-bootstrap/internal/provision"
	"github.com/deepgrid/gpu-bootstrap/internal/status"
)

// App is the top-level application behind the CLI commands.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracker *status.Tracker
	runID   string
}

// New creates the application for one bootstrap run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	runID := "run-" + uuid.New().String()[:8]
	return &App{
		cfg:     cfg,
		logger:  logger.With("run_id", runID),
		tracker: status.NewTracker(runID, config.Version),
		runID:   runID,
	}
}

// Provision installs the CUDA stack and builds the inference engine.
func (a *App) Provision(ctx context.Context) error {
	return a.withStatusServer(ctx, func(ctx context.Context) error {
		a.tracker.SetPhase(status.PhaseProvisioning)
		a.logger.Info("provisioning started", "version", config.Version)

		p := provision.New(a.cfg, provision.NewRunner(a.logger), a.tracker, a.logger)
		if err := p.Run(ctx); err != nil {
			a.tracker.Fail(err)
			return err
		}

		a.tracker.SetPhase(status.PhaseDone)
		a.logger.Info("provisioning finished")
		return nil
	})
}

// FetchModels downloads the manifest's model files.
func (a *App) FetchModels(ctx context.Context) error {
	return a.withStatusServer(ctx, func(ctx context.Context) error {
		manifest, err := a.loadManifest()
		if err != nil {
			a.tracker.Fail(err)
			return err
		}

		a.tracker.SetPhase(status.PhaseFetching)
		a.logger.Info("fetching models", "files", len(manifest.Files), "dest", a.cfg.ModelDir)

		d := models.NewDownloader(a.cfg.ModelDir, a.tracker, a.logger)
		if err := d.FetchAll(ctx, manifest.Files); err != nil {
			a.tracker.Fail(err)
			return err
		}

		a.tracker.SetPhase(status.PhaseDone)
		a.logger.Info("models fetched")
		return nil
	})
}

// loadManifest prefers the installed manifest file and falls back to
// the built-in list when none is present.
func (a *App) loadManifest() (*models.Manifest, error) {
	if _, err := os.Stat(a.cfg.ManifestPath); os.IsNotExist(err) {
		a.logger.Info("no manifest installed, using built-in model list", "path", a.cfg.ManifestPath)
		return models.Default(), nil
	}
	return models.LoadManifest(a.cfg.ManifestPath)
}

// withStatusServer runs fn with the status HTTP server alive, when the
// configuration enables one.
func (a *App) withStatusServer(ctx context.Context, fn func(context.Context) error) error {
	if a.cfg.StatusPort == 0 {
		return fn(ctx)
	}

	srv := status.NewServer(a.cfg.StatusPort, a.tracker)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	a.logger.Info("status server started", "port", a.cfg.StatusPort)

	runErr := fn(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("status server shutdown", "err", err)
	}
	if err := <-errCh; err != nil && runErr == nil {
		return fmt.Errorf("status server: %w", err)
	}
	return runErr
}
