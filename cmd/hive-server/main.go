package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackadi-io/hive/internal/api"
	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/crypto"
	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/server/notify"
	"github.com/jackadi-io/hive/internal/server/session"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/server/tasks"
	flag "github.com/spf13/pflag"

	_ "github.com/jackadi-io/hive/internal/logs"
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

func dbGC(ctx context.Context, db *badger.DB) {
	ticker := time.NewTicker(config.DatabaseGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := db.RunValueLogGC(config.DBGCThreshold)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("database GC failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func newNotifier(cfg config.KafkaConfig) (notify.Notifier, func()) {
	if !cfg.Enabled {
		return notify.Log{}, func() {}
	}

	slog.Info("publishing task events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
	k := notify.NewKafka(notify.NewKafkaWriter(cfg))
	return notify.Multi{notify.Log{}, k}, func() {
		if err := k.Close(); err != nil {
			slog.Warn("failed to close kafka writer", "error", err)
		}
	}
}

func run(cfg *config.ServerConfig) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	key, err := crypto.ParseKey(cfg.SessionKey)
	if err != nil {
		return fmt.Errorf("invalid session key: %w", err)
	}
	cipher, err := crypto.NewSession(key)
	if err != nil {
		return err
	}
	codec := frame.NewCodec(cipher)

	dbOptions := badger.
		DefaultOptions(cfg.DatabaseDir).
		WithLogger(slogBadgerAdapter{})

	db, err := badger.Open(dbOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dbGC(ctx, db)

	notifier, closeNotifier := newNotifier(cfg.Kafka)
	defer closeNotifier()

	st := store.New(db)
	svc := tasks.New(st, codec, notifier)
	restored, err := svc.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore pending tasks: %w", err)
	}
	if restored > 0 {
		slog.Info("pending tasks queued again", "count", restored)
	}

	ts, err := newTeamServer(cfg, session.New(st, svc))
	if err != nil {
		return err
	}
	defer ts.Close()

	go func() {
		if err := ts.Serve(); err != nil {
			slog.Error("gRPC server stopped", "reason", err)
		}
	}()

	if cfg.API.Enabled {
		apiCfg := api.Config{
			ConfigDir:  cfg.ConfigDir,
			Address:    cfg.API.Address,
			Port:       cfg.API.Port,
			HTPasswd:   cfg.API.HTPasswd,
			TLSEnabled: cfg.API.TLS.Enabled,
			TLSCert:    cfg.API.TLS.Cert,
			TLSKey:     cfg.API.TLS.Key,
		}
		go func() {
			if err := api.Start(ctx, apiCfg, svc); err != nil {
				slog.Error("web API stopped", "error", err)
			}
		}()
	}

	<-sig
	slog.Warn("shutdown")
	return nil
}

func main() {
	versionCmd := flag.BoolP("version", "v", false, "print version")
	generateKey := flag.Bool("generate-key", false, "print a new random session key and exit")

	config.SetupServerFlags()

	flag.CommandLine.SortFlags = false
	flag.Parse()

	if *versionCmd {
		printVersion()
		os.Exit(0)
	}

	if *generateKey {
		key, err := crypto.GenerateKey()
		if err != nil {
			slog.Error("failed to generate session key", "error", err)
			os.Exit(1)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		os.Exit(0)
	}

	configFile := flag.Lookup("config").Value.String()
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("hive team server", "version", version, "commit", commit, "build date", date)

	if err := run(cfg); err != nil {
		slog.Error("shutdown", "error", err)
		os.Exit(1)
	}
}
