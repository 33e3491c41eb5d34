package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/ai"
	"forex-trading-agent/internal/api"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/database"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/logging"
	"forex-trading-agent/internal/news"
	"forex-trading-agent/internal/orchestrator"
	"forex-trading-agent/internal/store"
	"forex-trading-agent/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	genConfig := flag.Bool("generate-config", false, "write a sample config file and exit")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		fmt.Printf("Sample config written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().
		Int("accounts", len(cfg.Accounts)).
		Strs("symbols", cfg.TradingConfig.Symbols).
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Msg("starting forex trading agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	// Optional credential source. Broker API keys stay in Vault when
	// it is configured; otherwise the config file values are used.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("vault client failed")
	}
	if vaultClient.Enabled() {
		logger.Info().Str("address", cfg.VaultConfig.Address).Msg("vault credential source enabled")
	}

	// Optional trade journal.
	var journal *database.Journal
	if cfg.DatabaseConfig.Enabled {
		journal, err = database.NewJournal(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("trade journal failed")
		}
		defer journal.Close()
	} else {
		logger.Info().Msg("trade journal disabled")
	}

	// Optional risk state snapshots.
	var riskStore *store.Store
	if cfg.RedisConfig.Enabled {
		riskStore = store.NewStore(cfg.RedisConfig, logger)
		defer riskStore.Close()

		for _, acct := range cfg.Accounts {
			state, found, err := riskStore.LoadRiskState(ctx, acct.ID)
			if err != nil || !found {
				continue
			}
			logger.Info().
				Str("account", acct.ID).
				Int("consecutive_losses", state.ConsecutiveLosses).
				Float64("size_factor", state.SizeFactor).
				Float64("daily_pnl", state.DailyPnL).
				Time("saved_at", state.SavedAt).
				Msg("previous risk state found")
		}
	}

	// Economic calendar feed for the news blackout gate.
	var calendar news.Calendar
	if cfg.NewsConfig.Enabled {
		feed := news.NewFeed(cfg.NewsConfig, logger)
		go feed.Run(ctx)
		calendar = feed
	} else {
		logger.Warn().Msg("news blackout gate disabled")
	}

	// Optional AI advisory path.
	var advisor ai.Advisor
	if cfg.AIConfig.Enabled {
		advisor = ai.NewClient(cfg.AIConfig, logging.Component(logger, "advisor"))
		logger.Info().Str("provider", cfg.AIConfig.Provider).Msg("advisory model enabled")
	}

	factory := func(acct config.AccountConfig) broker.Broker {
		resolved := vaultClient.Resolve(ctx, acct)
		return broker.New(resolved, logging.Component(logger, "broker"))
	}

	var journalIface orchestrator.Journal
	if journal != nil {
		journalIface = journal
	}
	supervisor := orchestrator.NewSupervisor(cfg, factory, calendar, advisor, bus, journalIface, logger)
	if err := supervisor.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("supervisor failed to start")
	}

	if riskStore != nil {
		go snapshotRiskState(ctx, supervisor, riskStore, cfg.Accounts, logger)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var history api.TradeHistory
		if journal != nil {
			history = journal
		}
		server = api.NewServer(cfg.ServerConfig, supervisor, history, bus, logger)
		server.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	if server != nil {
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("api shutdown failed")
		}
	}
	supervisor.Stop()
	cancel()
	logger.Info().Msg("shutdown complete")
}

// snapshotRiskState periodically persists each account's throttle state
// so a restart resumes with the same anti-tilt posture.
func snapshotRiskState(ctx context.Context, sup *orchestrator.Supervisor, riskStore *store.Store, accounts []config.AccountConfig, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, acct := range accounts {
				engine := sup.Engine(acct.ID)
				if engine == nil {
					continue
				}
				summary := engine.RiskSummary()
				state := store.RiskState{
					AccountID:         acct.ID,
					ConsecutiveLosses: summary["consecutive_losses"].(int),
					SizeFactor:        summary["size_factor"].(float64),
					DailyPnL:          summary["daily_pnl"].(float64),
					BreakerTripped:    summary["breaker_tripped"].(bool),
				}
				if err := riskStore.SaveRiskState(ctx, state); err != nil {
					logger.Debug().Err(err).Str("account", acct.ID).Msg("risk snapshot failed")
				}
			}
		}
	}
}
