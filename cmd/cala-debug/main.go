package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/cala"
	"cala2mqtt/internal/config"
	"cala2mqtt/internal/model"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var configPath, command, heaterID, mode string
	var temp float64
	var hours, days int
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the config file")
	flag.StringVar(&command, "cmd", "", "Command to run: list, status, daily, set-temp, set-mode, boost, cancel-boost, vacation, cancel-vacation, on, off")
	flag.StringVar(&heaterID, "heater", "", "Heater ID for heater commands")
	flag.StringVar(&mode, "mode", "", "Mode for set-mode: standard, eco, boost, vacation")
	flag.Float64Var(&temp, "temp", 0, "Target temperature in °F for set-temp")
	flag.IntVar(&hours, "hours", 0, "Boost duration in hours (0 uses the config default)")
	flag.IntVar(&days, "days", 0, "Vacation duration in days (0 uses the config default)")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of cala-debug:")
		fmt.Println("  -config string\tPath to the config file (default 'config.yaml')")
		fmt.Println("  -cmd string\tCommand to run: list, status, daily, set-temp, set-mode, boost, cancel-boost, vacation, cancel-vacation, on, off")
		fmt.Println("  -heater string\tHeater ID for heater commands")
		fmt.Println("  -mode string\tMode for set-mode: standard, eco, boost, vacation")
		fmt.Println("  -temp float\tTarget temperature in °F for set-temp")
		fmt.Println("  -hours int\tBoost duration in hours")
		fmt.Println("  -days int\tVacation duration in days")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load(configPath, "warn")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	client := cala.NewClient(cfg.Cloud.Email, cfg.Cloud.Password,
		cala.WithTokenCache(cala.NewTokenCache(cfg.Cloud.TokenCacheFile)))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if command == "list" {
		heaters, err := client.ListHeaters(ctx)
		if err != nil {
			fail(command, err)
		}
		for _, h := range heaters {
			fmt.Printf("%s\t%s\t%s\t(%s)\n", h.ID, h.Name, h.Model, h.HomeName)
		}
		return
	}

	if heaterID == "" {
		fmt.Println("Error: heater ID is required")
		os.Exit(1)
	}

	switch command {
	case "status":
		heater, err := resolveHeater(ctx, client, heaterID)
		if err != nil {
			fail(command, err)
		}
		telem, err := client.HeaterStatus(ctx, heater.IoTID)
		if err != nil {
			fail(command, err)
		}
		printJSON(telem)
	case "daily":
		heater, err := resolveHeater(ctx, client, heaterID)
		if err != nil {
			fail(command, err)
		}
		energy, water, err := client.DailySummary(ctx, heater.IoTID, time.Now().Format("2006-01-02"))
		if err != nil {
			fail(command, err)
		}
		fmt.Printf("energy: %.3f kWh\nwater: %.1f L\n", energy, water)
	case "set-temp":
		err = client.SetTemperature(ctx, heaterID, model.ClampTarget(temp))
	case "set-mode":
		m, perr := model.ParseMode(mode)
		if perr != nil {
			fail(command, perr)
		}
		err = client.SetMode(ctx, heaterID, m)
	case "boost":
		if hours == 0 {
			hours = cfg.BoostDurationHours
		}
		err = client.StartBoost(ctx, heaterID, hours)
	case "cancel-boost":
		err = client.CancelBoost(ctx, heaterID)
	case "vacation":
		if days == 0 {
			days = cfg.VacationDurationDays
		}
		err = client.StartVacation(ctx, heaterID, days)
	case "cancel-vacation":
		err = client.CancelVacation(ctx, heaterID)
	case "on":
		err = client.TurnOn(ctx, heaterID)
	case "off":
		err = client.TurnOff(ctx, heaterID)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fail(command, err)
	}
	if command != "status" && command != "daily" {
		fmt.Printf("Command %s completed successfully\n", command)
	}
}

func resolveHeater(ctx context.Context, client *cala.Client, heaterID string) (model.Heater, error) {
	heaters, err := client.ListHeaters(ctx)
	if err != nil {
		return model.Heater{}, err
	}
	for _, h := range heaters {
		if h.ID == heaterID || h.Name == heaterID {
			return h, nil
		}
	}
	return model.Heater{}, fmt.Errorf("heater %q not found", heaterID)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output")
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func fail(command string, err error) {
	fmt.Printf("Command %s failed: %v\n", command, err)
	os.Exit(1)
}
