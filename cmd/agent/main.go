// Command agent runs the memecoin trading execution agent: it wires every
// component from C1-C13 together and runs until SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/bot/main.go wiring shape (runHeadless,
// initComponents, setupLogger, signal.Notify shutdown); this command drops
// the TUI path entirely, since signals arrive over the Redis queue (C1)
// rather than Telegram/HTTP and there is no interactive operator surface
// beyond the admin server (C13).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/adminserver"
	"memecoin-agent/internal/blockchain"
	"memecoin-agent/internal/bundle"
	"memecoin-agent/internal/config"
	"memecoin-agent/internal/health"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/model"
	"memecoin-agent/internal/monitor"
	"memecoin-agent/internal/position"
	"memecoin-agent/internal/preparedtx"
	"memecoin-agent/internal/price"
	"memecoin-agent/internal/queue"
	"memecoin-agent/internal/storage"
	"memecoin-agent/internal/trader"
	"memecoin-agent/internal/venue/aggregator"
	"memecoin-agent/internal/venue/curve"
)

// balanceRefreshInterval mirrors the teacher's wallet-balance poll cadence.
const balanceRefreshInterval = 5 * time.Second

// blockhashRefreshInterval/blockhashTTL mirror the teacher's aggressive
// double-buffer prefetch cadence for the single-signer transaction path
// (spec.md §4.2).
const (
	blockhashRefreshInterval = 2 * time.Second
	blockhashTTL             = 30 * time.Second
)

func main() {
	setupLogger()
	log.Info().Msg("memecoin-agent starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	defer cfg.Close()

	if controlDir := os.Getenv("CONTROL_DIR"); controlDir != "" {
		if err := cfg.WatchControlDir(controlDir); err != nil {
			log.Warn().Err(err).Msg("control-dir watch failed, continuing without live pause toggle")
		}
	}

	wallet, err := blockchain.NewWallet(cfg.Get().Wallet.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load wallet")
	}

	rpc := blockchain.NewRPCClient(cfg.Get().RPC.URL, cfg.Get().RPC.FallbackURL, "")
	balanceTracker := blockchain.NewBalanceTracker(wallet, rpc)
	if err := balanceTracker.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial balance refresh failed")
	} else if balanceTracker.BalanceLamports() == 0 {
		log.Warn().Str("address", wallet.Address()).Msg("wallet has 0 SOL, trades will fail until funded")
	}

	blockhashCache := blockchain.NewBlockhashCache(rpc, blockhashRefreshInterval, blockhashTTL)
	if err := blockhashCache.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start blockhash cache")
	}
	defer blockhashCache.Stop()
	txBuilder := blockchain.NewTransactionBuilder(wallet, blockhashCache, cfg.Get().Fees.PriorityFeeBuyLamports)

	bundleClient := bundle.NewClient(cfg.Get().Bundle.EndpointURL)
	aggClient := aggregator.NewClient(cfg.Get().Aggregator.BaseURL, cfg.Get().Aggregator.APIKey, 10*time.Second, cfg.Get().Trading.SlippageBps)
	curveClient := curve.NewClient(cfg.Get().Curve.BaseURL, 10*time.Second)

	priceStream := price.NewStream(cfg.Get().PriceFeed.WSURL, 0)
	pollingSource := price.NewPollingSource(cfg.Get().Aggregator.BaseURL, cfg.Get().Curve.BaseURL)
	prices := price.NewCache(priceStream, pollingSource)

	positions := position.NewRegistry()
	prepared := preparedtx.NewCache()
	tradeMetrics := metrics.New()

	db, err := storage.New(cfg.Get().Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit store")
	}
	defer db.Close()

	bus, err := queue.New(cfg.Get().Queue.URL, cfg.Get().Queue.SignalsList, cfg.Get().Queue.PreSignalsList, cfg.Get().Queue.ResultsList)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to queue")
	}
	defer bus.Close()

	publish := func(ctx context.Context, result model.TradeResult) error {
		if err := db.InsertTrade(result); err != nil {
			log.Error().Err(err).Str("mint", result.TokenMint).Msg("audit: failed to record trade")
		}
		return bus.PublishResult(ctx, result)
	}

	orchestrator := trader.New(cfg, wallet, rpc, bundleClient, aggClient, curveClient, positions, prepared, prices, tradeMetrics, txBuilder, publish)
	positionMonitor := monitor.New(positions, prices, orchestrator, time.Duration(cfg.Get().Trading.PositionCheckSecs)*time.Second)

	checker := health.NewChecker(cfg.Get().RPC.URL, bus.RedisClient())
	adminSrv := adminserver.New(cfg.Get().Admin.ListenHost, cfg.Get().Admin.ListenPort, checker, positions, tradeMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go priceStream.Run(ctx)
	go prepared.RunPeriodicPurge(ctx.Done(), preparedtx.TTL)
	go positionMonitor.Run(ctx)
	checker.Start(ctx)

	go bus.ConsumeSignals(ctx, func(sig model.Signal) {
		if err := db.InsertSignal(sig); err != nil {
			log.Error().Err(err).Str("mint", sig.TokenMint).Msg("audit: failed to record signal")
		}
		orchestrator.ProcessSignal(ctx, sig)
	})
	go bus.ConsumePreSignals(ctx, func(pre model.PreSignal) {
		orchestrator.Prepare(ctx, pre)
	})

	go func() {
		ticker := time.NewTicker(balanceRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := balanceTracker.Refresh(ctx); err != nil {
					log.Warn().Err(err).Msg("balance refresh failed")
				}
			}
		}
	}()

	go func() {
		if err := adminSrv.Start(); err != nil {
			log.Error().Err(err).Msg("admin server stopped")
		}
	}()

	log.Info().
		Str("host", cfg.Get().Admin.ListenHost).
		Int("port", cfg.Get().Admin.ListenPort).
		Msg("admin server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	if err := adminSrv.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("admin server shutdown error")
	}
	log.Info().Msg("goodbye")
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
