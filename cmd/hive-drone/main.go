package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/crypto"
	"github.com/jackadi-io/hive/internal/drone"
	"github.com/jackadi-io/hive/internal/frame"
	_ "github.com/jackadi-io/hive/internal/logs"
	"github.com/jackadi-io/hive/internal/task"
	flag "github.com/spf13/pflag"
)

var version = "dev"
var commit = "N/A"
var date = "N/A"

func printVersion() {
	if version != "dev" {
		version = fmt.Sprintf("v%s", version)
	}
	fmt.Printf("%s (commit: %s, build date: %s)\n", version, commit, date)
}

func run(cfg *config.DroneConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	key, err := crypto.ParseKey(cfg.SessionKey)
	if err != nil {
		return fmt.Errorf("invalid session key: %w", err)
	}
	cipher, err := crypto.NewSession(key)
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		slog.Warn("failed to get hostname", "error", err)
	}

	d := drone.New(drone.Config{
		DroneID:            task.DroneID(cfg.DroneID),
		Hostname:           hostname,
		ServerAddress:      cfg.ServerAddress,
		ServerPort:         cfg.ServerPort,
		MTLS:               cfg.MTLS,
		ReconnectDelay:     time.Duration(cfg.ReconnectDelay) * time.Second,
		CheckInInterval:    time.Duration(cfg.CheckInInterval) * time.Second,
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
	}, frame.NewCodec(cipher))

	if err := d.Dial(); err != nil {
		return fmt.Errorf("failed to initialize the connection to the team server: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			slog.Error("failed to close connection", "error", err)
		}
	}()

	slog.Debug("initializing", "drone-id", cfg.DroneID)
	err = d.Run(ctx)
	slog.Warn("bye")
	return err
}

func main() {
	versionCmd := flag.BoolP("version", "v", false, "print version")

	config.SetupDroneFlags()

	flag.CommandLine.SortFlags = false
	flag.Parse()

	if *versionCmd {
		printVersion()
		os.Exit(0)
	}

	configFile := flag.Lookup("config").Value.String()
	cfg, err := config.LoadDroneConfig(configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("hive drone", "version", version, "commit", commit, "build date", date)

	if err := run(cfg); err != nil {
		slog.Error("shutdown", "error", err)
		os.Exit(1)
	}
}
