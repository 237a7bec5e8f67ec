package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"bridgeproxy/config"
	"bridgeproxy/core/events"
	"bridgeproxy/native/proxy"
	"bridgeproxy/observability/logging"
	"bridgeproxy/rpc"
	"bridgeproxy/storage"
)

const envPrefix = "BRIDGEPROXY_ENV"

// settlementInvoker settles provider calls on the custody ledger: the full
// granted capacity is drawn into the router's account. Deployments that
// bridge to external execution replace this via Engine.SetInvoker.
type settlementInvoker struct{}

func (settlementInvoker) Invoke(call proxy.ProviderCall) error {
	// Native-path dispatches forward value up front and grant no capacity.
	if call.Value != nil {
		return nil
	}
	if call.Amount == nil || call.Amount.Sign() == 0 {
		return nil
	}
	return call.Tokens.TransferFrom(call.Asset, call.Custody, call.Router, call.Router, call.Amount)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envPrefix))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(logging.Options{
		Service: "proxyd",
		Env:     env,
		File:    cfg.LogFile,
	})

	custody, err := cfg.CustodyAddress()
	if err != nil {
		logger.Error("Failed to resolve custody address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	engine := proxy.NewEngine(db, custody)
	engine.SetInvoker(settlementInvoker{})
	engine.SetEmitter(events.NewMemoryEmitter(4096))

	genesis, seeded, err := cfg.GenesisConfig()
	if err != nil {
		logger.Error("Failed to build genesis config", slog.Any("error", err))
		os.Exit(1)
	}
	if seeded {
		switch err := engine.Setup(genesis); {
		case errors.Is(err, proxy.ErrAlreadyInitialized):
			logger.Info("proxy state already initialised, skipping genesis")
		case err != nil:
			logger.Error("Failed to seed proxy state", slog.Any("error", err))
			os.Exit(1)
		default:
			logger.Info("proxy state seeded",
				slog.Int("providers", len(genesis.Providers)),
				slog.Int("managers", len(genesis.Managers)))
		}
	}

	server := rpc.NewServer(engine, rpc.Options{
		Network:           cfg.NetworkName,
		Logger:            logger,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("HTTP server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}
