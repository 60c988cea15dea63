// Package main is the entry point for the Art-Net DMX bridge.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bbernstein/dmxbridge-go/internal/api"
	"github.com/bbernstein/dmxbridge-go/internal/config"
	"github.com/bbernstein/dmxbridge-go/internal/database"
	"github.com/bbernstein/dmxbridge-go/internal/database/models"
	"github.com/bbernstein/dmxbridge-go/internal/database/repositories"
	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
	"github.com/bbernstein/dmxbridge-go/internal/services/i2sdmx"
	"github.com/bbernstein/dmxbridge-go/internal/services/pubsub"
	"github.com/bbernstein/dmxbridge-go/internal/services/receiver"
	"github.com/bbernstein/dmxbridge-go/internal/services/scheduler"
	"github.com/bbernstein/dmxbridge-go/internal/services/uartdmx"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)

	// Connect to database (persisted runtime settings)
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 2,
		MaxOpenConn: 4,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Saved settings override the environment defaults
	settingRepo := repositories.NewSettingRepository(db)
	ctx := context.Background()
	if v, err := settingRepo.FindInt(ctx, models.SettingUniverse, cfg.Universe); err == nil && v != cfg.Universe {
		log.Printf("💾 Using saved universe %d", v)
		cfg.Universe = v
	}
	if v, err := settingRepo.FindInt(ctx, models.SettingChannels, cfg.Channels); err == nil && v != cfg.Channels {
		log.Printf("💾 Using saved channel count %d", v)
		cfg.Channels = v
	}
	if v, err := settingRepo.FindInt(ctx, models.SettingDelayMS, int(cfg.Delay.Milliseconds())); err == nil {
		cfg.Delay = time.Duration(v) * time.Millisecond
	}

	buffer := frame.NewBuffer(cfg.Universe)
	ps := pubsub.New()

	// Output transports. A transport that fails to initialize is disabled;
	// the others keep running.
	var transports []scheduler.Transport
	var uartEnc *uartdmx.Encoder
	var i2sDevice *i2sdmx.StreamDevice

	if cfg.UARTEnabled {
		port, err := uartdmx.OpenPort(cfg.SerialDevice)
		if err != nil {
			log.Printf("⚠️ UART transport disabled: %v", err)
		} else if uartEnc, err = uartdmx.NewEncoder(port, cfg.Channels); err != nil {
			log.Printf("⚠️ UART transport disabled: %v", err)
		} else {
			transports = append(transports, uartEnc)
			log.Printf("🔌 UART transport on %s (%d channels)", cfg.SerialDevice, uartEnc.Channels())
		}
	}

	if cfg.I2SEnabled {
		if enc, err := setupI2S(cfg, &i2sDevice); err != nil {
			log.Printf("⚠️ I2S transport disabled: %v", err)
		} else {
			transports = append(transports, enc)
			log.Printf("🔌 I2S transport to %s (safe timing: %v)", cfg.I2SOutputPath, cfg.I2SSafeTiming)
		}
	}

	if len(transports) == 0 {
		log.Printf("⚠️ No output transports active; running as monitor only")
	}

	// Scheduler
	sched := scheduler.New(scheduler.Config{
		Delay:         cfg.Delay,
		StatsInterval: cfg.StatsInterval,
		PubSub:        ps,
	}, buffer, transports...)
	sched.Start()

	// Art-Net ingress
	recv := receiver.NewService(receiver.Config{
		Port:      cfg.ArtNetPort,
		ShortName: "dmxbridge",
		LongName:  "Art-Net to DMX512 bridge",
	}, buffer, ps)
	if err := recv.Initialize(); err != nil {
		log.Printf("Warning: Art-Net receiver initialization failed: %v", err)
	}

	// HTTP status/config server
	server := api.NewServer(cfg, api.Deps{
		Buffer:    buffer,
		Scheduler: sched,
		Receiver:  recv,
		Settings:  settingRepo,
		PubSub:    ps,
		UART:      uartEnc,
		Version:   Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Cleanup services in reverse order
	recv.Stop()
	sched.Stop()
	if i2sDevice != nil {
		_ = i2sDevice.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Bridge stopped")
}

// setupI2S opens the shift-stream sink and builds the encoder.
func setupI2S(cfg *config.Config, device **i2sdmx.StreamDevice) (*i2sdmx.Encoder, error) {
	if cfg.I2SOutputPath == "" {
		return nil, fmt.Errorf("DMX_I2S_OUTPUT not set")
	}

	f, err := os.OpenFile(cfg.I2SOutputPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.I2SOutputPath, err)
	}

	timing := i2sdmx.FastTiming
	if cfg.I2SSafeTiming {
		timing = i2sdmx.SafeTiming
	}

	*device = i2sdmx.NewStreamDevice(f, i2sdmx.WordRate)
	return i2sdmx.NewEncoder(*device, timing)
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  Art-Net DMX Bridge")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  HTTP port:   %s\n", cfg.Port)
	fmt.Printf("  Universe:    %d\n", cfg.Universe)
	fmt.Printf("  Delay:       %v\n", cfg.Delay)
	fmt.Printf("  UART:        %v (%s)\n", cfg.UARTEnabled, cfg.SerialDevice)
	fmt.Printf("  I2S:         %v\n", cfg.I2SEnabled)
	fmt.Println("============================================")
}
