// Command gateway-sim serves the gateway wire protocol with simulated blinds,
// for local development against the bridge.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/server"
	"blinds_bridge/internal/simulator"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// SIM_ADDR, SIM_SECURITY_CODE, SIM_DEVICES ("65537,65538"), SIM_TICK
func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("addr", ":8443")
	v.SetDefault("security_code", "tiiyhgOey5j6VTIS")
	v.SetDefault("devices", "65537")
	v.SetDefault("tick", simulator.DefaultTickInterval)
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix("SIM")
	v.AutomaticEnv()
	return v
}

func main() {
	v := loadConfig()
	log := logger.Get(v.GetString("log_level"), "console")
	gin.SetMode(gin.ReleaseMode)

	var devices []simulator.Device
	for _, id := range strings.Split(v.GetString("devices"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			devices = append(devices, simulator.Device{ID: id, Position: 100, Battery: 100})
		}
	}
	sim := simulator.New(v.GetString("security_code"), devices, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sim.Run(gctx, v.GetDuration("tick"))
		return nil
	})

	srv := &server.Server{}
	g.Go(func() error {
		log.Infow("gateway_sim_listening", "addr", v.GetString("addr"), "devices", len(devices))
		return srv.Run(v.GetString("addr"), sim.Handler())
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("gateway simulator stopped", "err", err)
	}
}
