package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/catalog"
	"github.com/lehigh-university-libraries/artscan/internal/config"
	"github.com/lehigh-university-libraries/artscan/internal/consent"
	"github.com/lehigh-university-libraries/artscan/internal/handlers"
	"github.com/lehigh-university-libraries/artscan/internal/i18n"
	"github.com/lehigh-university-libraries/artscan/internal/identify"
	"github.com/lehigh-university-libraries/artscan/internal/narration"
	"github.com/lehigh-university-libraries/artscan/internal/sse"
	"github.com/lehigh-university-libraries/artscan/internal/storage"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	sweepInterval      = time.Minute
	narrationWPM       = 150
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the visitor guide web server",
		Long: `Starts the artscan visitor guide on the configured port.

Visitors point the kiosk camera (or upload a photo) at an artwork; the server
asks the configured vision model which catalog artwork it shows and streams the
result to the browser.`,
		Example: `  # Start server on default port 8888
  artscan serve

  # Use a config file and a custom port
  artscan serve --config artscan.yaml --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.App.HTTP.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8888, "Port to listen on")

	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if path != "" {
		var err error
		if cat, err = catalog.Load(path); err != nil {
			return nil, err
		}
	}
	for id, missing := range cat.DanglingRelations() {
		slog.Warn("Catalog artwork relates to unknown artworks", "artwork_id", id, "missing", missing)
	}
	return cat, nil
}

func newIdentifier(cfg config.IdentifyConfig, cat *catalog.Catalog) (*identify.Client, error) {
	provider, model, err := identify.NewProvider(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, err
	}
	slog.Info("Using vision model", "provider", cfg.Provider, "model", model)
	return identify.NewClient(provider, cat,
		identify.WithModel(model),
		identify.WithTemperature(cfg.Temperature),
		identify.WithTimeout(cfg.Timeout),
	), nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	client, err := newIdentifier(cfg.Identify, cat)
	if err != nil {
		return err
	}

	var camera capture.Device = capture.Unavailable{Detail: "camera disabled in configuration"}
	if cfg.Camera.Enabled {
		cam := capture.NewCamera(capture.CameraConfig{
			Command:        cfg.Camera.Command,
			InputFormat:    cfg.Camera.InputFormat,
			Device:         cfg.Camera.Device,
			FrameRate:      cfg.Camera.FrameRate,
			StartupTimeout: cfg.Camera.StartupTimeout,
		})
		defer cam.Close()
		camera = cam
	}

	var synth narration.Synthesizer = narration.Silent{WordsPerMinute: narrationWPM}
	if cfg.Narration.Command != "" && cfg.Narration.Command != "silent" {
		synth = narration.NewCommandSynthesizer(cfg.Narration.Command)
	}

	db, err := storage.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	sink, closeSinks := newSink(cfg.Analytics, db)
	defer closeSinks()

	bundle, err := i18n.New(cfg.I18n.Dir, cfg.I18n.Locales)
	if err != nil {
		return err
	}
	if cfg.I18n.Watch {
		go func() {
			if err := bundle.Watch(ctx); err != nil {
				slog.Error("Locale watcher stopped", "err", err)
			}
		}()
	}

	broker := sse.NewBroker()
	defer broker.Close()

	handler := handlers.New(handlers.Options{
		Catalog:       cat,
		Identifier:    client,
		Camera:        camera,
		Synthesizer:   synth,
		Files:         capture.NewFileSource(cfg.App.HTTP.MaxUploadBytes),
		Consent:       consent.NewService(db),
		Bundle:        bundle,
		Broker:        broker,
		Sink:          sink,
		Stats:         db,
		StaticDir:     cfg.App.HTTP.StaticDir,
		SecureCookies: cfg.App.HTTP.SecureCookies,
	})
	defer handler.Close()

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := handler.Sweep(now, sessionIdleTimeout); n > 0 {
					slog.Info("Closed idle visitor sessions", "count", n)
				}
			}
		}
	}()

	addr := cfg.App.HTTP.Address()
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Artscan visitor guide available", "addr", addr, "url", "http://localhost"+addr, "artworks", cat.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation (Ctrl+C) or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
		// Event streams stay open until their sessions close
		handler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}
}

// newSink builds the configured analytics sinks and a func that flushes them
func newSink(cfg config.AnalyticsConfig, db *storage.DB) (analytics.Sink, func()) {
	var (
		sinks   analytics.Multi
		closers []func()
	)
	if cfg.Log {
		sinks = append(sinks, analytics.LogSink{})
	}
	if cfg.Store {
		store := analytics.NewStoreSink(db, cfg.Buffer, 2*time.Second)
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}
	if cfg.MQTT.Broker != "" {
		mq, err := analytics.NewMQTTSink(analytics.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			slog.Error("MQTT analytics disabled", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			sinks = append(sinks, mq)
			closers = append(closers, mq.Close)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
