package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gitlab.com/TitanInd/fundvault/internal/config"
	"gitlab.com/TitanInd/fundvault/internal/events"
	"gitlab.com/TitanInd/fundvault/internal/handlers/httphandlers"
	"gitlab.com/TitanInd/fundvault/internal/httpserver"
	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"gitlab.com/TitanInd/fundvault/internal/ledger"
	"gitlab.com/TitanInd/fundvault/internal/lib"
	"gitlab.com/TitanInd/fundvault/internal/vault"
	"gitlab.com/TitanInd/fundvault/internal/vaultmanager"
)

func main() {
	err := start()
	if err != nil {
		panic(err)
	}
}

func start() error {
	_ = godotenv.Load(".env")

	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		return err
	}
	cfg.SetDefaults()

	logPath := func(name string) string {
		if cfg.Log.FolderPath == "" {
			return ""
		}
		return cfg.Log.FolderPath + "/" + name
	}

	log, err := lib.NewLogger(cfg.Log.LevelApp, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logPath("app.log"))
	if err != nil {
		return err
	}

	vaultLog, err := lib.NewLogger(cfg.Log.LevelVault, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logPath("vault.log"))
	if err != nil {
		return err
	}

	httpLog, err := lib.NewLogger(cfg.Log.LevelHTTP, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logPath("http.log"))
	if err != nil {
		return err
	}

	defer func() {
		_ = log.Sync()
		_ = vaultLog.Sync()
		_ = httpLog.Sync()
	}()

	log.Infof("fundvault %s, environment %s", config.BuildVersion, cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("Received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("Received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	book := ledger.NewLedger(log.Named("LEDGER"))
	eventManager := events.NewEventManager(log.Named("EVENTS"))

	gatewayFactory := func(escrow common.Address) vault.PaymentGateway {
		return book.Escrow(escrow)
	}

	manager := vaultmanager.NewVaultManager(gatewayFactory, eventManager, vaultmanager.Defaults{
		VotingTime:       cfg.VotingTime(),
		RetryCooldown:    cfg.RetryCooldown(),
		MaxRetryAttempts: cfg.Vault.MaxRetryAttempts,
		EventHistorySize: cfg.Vault.EventHistorySize,
	}, vaultLog)

	handl := httphandlers.NewHTTPHandler(manager, &cfg, httpLog)

	var server interfaces.Runnable = httpserver.NewHTTPServer(cfg.Web.Address, handl, httpLog)

	err = server.Run(ctx)
	log.Infof("App exited due to %s", err)
	return err
}
