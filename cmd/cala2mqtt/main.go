package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"cala2mqtt/db"
	"cala2mqtt/internal/api"
	"cala2mqtt/internal/cala"
	"cala2mqtt/internal/config"
	"cala2mqtt/internal/coordinator"
	"cala2mqtt/internal/hass"
	"cala2mqtt/internal/logging"
	"cala2mqtt/internal/metrics"
	"cala2mqtt/internal/model"
	"cala2mqtt/internal/notifications"
	"cala2mqtt/internal/ws"
)

func main() {
	var configPath, logLevel string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(configPath, logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogFile)
	metrics.Init(cfg.Datadog)

	log.Info().
		Str("config", configPath).
		Int("poll_interval_s", cfg.Cloud.PollIntervalSeconds).
		Msg("Starting cala2mqtt")

	if err := os.MkdirAll(filepath.Dir(cfg.DBFile), 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}
	database, err := db.Open(cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	client := cala.NewClient(cfg.Cloud.Email, cfg.Cloud.Password,
		cala.WithTokenCache(cala.NewTokenCache(cfg.Cloud.TokenCacheFile)))

	coord := coordinator.New(client, coordinator.Config{
		PollInterval:    time.Duration(cfg.Cloud.PollIntervalSeconds) * time.Second,
		DailySummaryTTL: time.Duration(cfg.Cloud.DailySummaryTTLSecs) * time.Second,
		BoostHours:      cfg.BoostDurationHours,
		VacationDays:    cfg.VacationDurationDays,
	})

	if cfg.NtfyTopic != "" {
		notifications.Init(cfg.NtfyTopic)
		watcher := notifications.NewWatcher()
		coord.AddListener(watcher.HandleState)
	}

	coord.AddListener(func(state model.State) {
		recordState(database, state)
	})

	if *cfg.MQTT.Enabled {
		bridge := hass.New(cfg.MQTT, coord, cfg.BoostDurationHours, cfg.VacationDurationDays)
		if err := bridge.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer bridge.Close()
		coord.AddListener(bridge.HandleState)
	}

	if *cfg.HTTP.Enabled {
		server := api.NewServer(coord)
		if *cfg.HTTP.EnableWebsocket {
			hub := ws.NewHub(coord.States)
			defer hub.Close()
			server.Mount("/ws", hub)
			coord.AddListener(hub.Broadcast)
		}
		go func() {
			if err := server.Start(cfg.HTTP.Addr); err != nil {
				log.Fatal().Err(err).Msg("REST API server failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneLoop(ctx, database, cfg.ReadingRetentionDays)

	if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Coordinator stopped unexpectedly")
	}

	log.Info().Msg("Shutting down")
}

// recordState persists one refreshed state: registry row, telemetry sample,
// and the day's usage totals.
func recordState(database *sql.DB, state model.State) {
	if err := db.UpsertHeater(database, state.Heater, state.UpdatedAt); err != nil {
		log.Warn().Err(err).Str("heater_id", state.Heater.ID).Msg("Failed to record heater")
	}
	if err := db.InsertReading(database, db.ReadingFromState(state)); err != nil {
		log.Warn().Err(err).Str("heater_id", state.Heater.ID).Msg("Failed to record reading")
	}
	if !state.Daily.ResetTime.IsZero() {
		date := state.Daily.ResetTime.Format("2006-01-02")
		if err := db.UpsertDailyUsage(database, state.Heater.ID, date, state.Daily.EnergyKWh, state.Daily.WaterL); err != nil {
			log.Warn().Err(err).Str("heater_id", state.Heater.ID).Msg("Failed to record daily usage")
		}
	}
}

// pruneLoop trims readings past the retention window once a day.
func pruneLoop(ctx context.Context, database *sql.DB, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		n, err := db.PruneReadings(database, cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune readings")
		} else if n > 0 {
			log.Info().Int64("pruned", n).Msg("Pruned old readings")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
