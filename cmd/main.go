package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "blinds_bridge/docs"
	"blinds_bridge/internal/bridge"
	"blinds_bridge/internal/config"
	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/handlers"
	"blinds_bridge/internal/homekit"
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/metrics"
	"blinds_bridge/internal/mqtt"
	"blinds_bridge/internal/repository"
	"blinds_bridge/internal/repository/db"
	"blinds_bridge/internal/server"
	"blinds_bridge/internal/service"
	"blinds_bridge/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

// @title           Blinds Bridge API
// @version         0.1
// @description     Control and observe gateway-connected roller blinds.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// load configs/config.yml, .env and BRIDGE_* overrides
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get("info", "console").Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level, cfg.Log.Encoding)

	// open DB
	sqlDB, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	states := store.New(storeDevices(cfg.Devices))
	session := gateway.NewSession(gateway.Config{
		URL:            cfg.Gateway.URL,
		SecurityCode:   cfg.Gateway.SecurityCode,
		Identity:       cfg.Gateway.Identity,
		ConnectTimeout: cfg.Gateway.ConnectTimeout,
	}, repos.Credentials, log)
	commands := dispatcher.New(session, states, cfg.Gateway.CommandTimeout, log, m)
	blinds := bridge.New(session, states, commands, repos.EventRepo, bridge.Config{
		StopDebounce: cfg.Bridge.StopDebounce,
		MaxBackoff:   cfg.Gateway.MaxBackoff,
	}, log, m)
	services := service.NewService(repos, blinds.Store(), blinds.Dispatcher(), service.AuthConfig{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	apiHandler := handlers.NewHandler(services, log).WithMetrics(m, reg)

	// context for background goroutines, cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return blinds.Run(gctx) })

	srv := &server.Server{}
	runHTTPServer(gctx, g, srv, cfg.HTTP.Port, apiHandler, log)

	if cfg.HomeKit.Enabled {
		hk := homekit.New(homekitConfig(cfg), services, services, log)
		g.Go(func() error { return hk.Run(gctx) })
	}

	if cfg.MQTT.Broker != "" {
		cli, err := mqtt.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID, log)
		if err != nil {
			log.Fatalw("failed to connect to mqtt broker", "broker", cfg.MQTT.Broker, "err", err)
		}
		defer cli.Close()
		mirror := mqtt.NewMirror(cli, cfg.MQTT.TopicPrefix, blinds.Store().IDs(), services, services, log)
		g.Go(func() error { return mirror.Run(gctx) })
	}

	log.Infow("bridge_started", "version", version, "devices", len(cfg.Devices), "gateway", cfg.Gateway.URL)
	if err := g.Wait(); err != nil {
		log.Errorw("bridge_stopped_with_error", "err", err)
		return
	}
	log.Infow("bridge_stopped")
}

// openDB initializes the SQLite database using configuration.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "bridge.db")
		path = "bridge.db"
	}
	return db.InitDB(path)
}

// runHTTPServer serves the API until ctx is done, then shuts down gracefully.
func runHTTPServer(ctx context.Context, g *errgroup.Group, srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	if port == "" {
		port = "8080"
	}
	g.Go(func() error {
		log.Infow("http_listening", "port", port)
		return srv.Run(port, handler.InitRoutes())
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Infow("shutting down server...")

		// allow in-flight requests to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func storeDevices(devices []config.DeviceConfig) []store.Device {
	out := make([]store.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, store.Device{ID: d.ID, Name: d.Name, LowBatteryThreshold: d.LowBatteryThreshold})
	}
	return out
}

func homekitConfig(cfg *config.Config) homekit.Config {
	hk := homekit.Config{
		Name:         cfg.HomeKit.Name,
		Pin:          cfg.HomeKit.Pin,
		StoragePath:  cfg.HomeKit.StoragePath,
		Addr:         cfg.HomeKit.Addr,
		Manufacturer: cfg.HomeKit.Manufacturer,
		Model:        cfg.HomeKit.Model,
		Firmware:     version,
	}
	for _, d := range cfg.Devices {
		hk.Devices = append(hk.Devices, homekit.Device{ID: d.ID, Name: d.Name, SerialNumber: d.SerialNumber})
	}
	return hk
}
