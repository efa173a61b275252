package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"stockroom/internal/bridge"
	"stockroom/internal/config"
	"stockroom/internal/http/handlers"
	applog "stockroom/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Optional file logging
	logFile, err := applog.Tee(cfg.LogFile, true)
	if err != nil {
		log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
	} else {
		defer logFile.Close()
	}

	inv, err := bridge.OpenInventory(cfg.InventoryCSV, cfg.CategoriesCSV)
	if err != nil {
		log.Fatal(err)
	}
	srv := bridge.NewServer(inv, cfg.ScanTimeout)
	deps := handlers.NewDeps(srv, cfg)

	apps := map[string]*fiber.App{
		cfg.BridgeListenAddr():    handlers.NewBridgeApp(deps),
		cfg.DiscoveryListenAddr(): handlers.NewDiscoveryApp(deps),
	}
	errs := make(chan error, len(apps))
	for addr, app := range apps {
		go func(addr string, app *fiber.App) {
			log.Printf("[listen] %s", addr)
			errs <- app.Listen(addr)
		}(addr, app)
	}
	applog.Info(nil, "bridge.start", map[string]any{
		"bridge":     cfg.BridgeListenAddr(),
		"discovery":  cfg.DiscoveryListenAddr(),
		"items":      inv.Len(),
		"categories": len(inv.Categories()),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case err := <-errs:
		applog.Error(nil, "bridge.listen", err, nil)
	}

	for _, app := range apps {
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			applog.Warn(nil, "bridge.shutdown", err, nil)
		}
	}
	applog.Info(nil, "bridge.stop", map[string]any{"items": inv.Len()})
}
