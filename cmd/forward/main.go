package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/engine"
	"github.com/anrvee/optionflow/internal/feed"
	"github.com/anrvee/optionflow/internal/observ"
	"github.com/anrvee/optionflow/internal/outbox"
	"github.com/anrvee/optionflow/internal/risk"
)

func main() {
	log.SetFlags(0)
	strategyPath := flag.String("strategy", "config/strategy.yaml", "strategy file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*strategyPath)
	if err != nil {
		log.Fatalf("load strategy: %v", err)
	}
	if u := os.Getenv("FEED_WS_URL"); u != "" {
		cfg.Feed.WSURL = u
	}
	if u := os.Getenv("FEED_REST_URL"); u != "" {
		cfg.Feed.RESTBaseURL = u
	}
	if cfg.Feed.WSURL == "" || cfg.Feed.RESTBaseURL == "" {
		log.Fatal("feed ws_url and rest_base_url are required for forward runs")
	}
	observ.Init(cfg.LogLevel)

	if cfg.MetricsAddr != "" {
		srv := observ.ServeMetrics(cfg.MetricsAddr)
		defer srv.Close()
		observ.Log("metrics_listening", map[string]any{"addr": cfg.MetricsAddr})
	}

	gate := risk.NewManager(cfg.InitialCapital, cfg.Risk.MaxDailyLossPct)
	box, err := outbox.New(cfg.OutboxPath)
	if err != nil {
		log.Fatalf("open outbox: %v", err)
	}
	_ = box.WriteEvent("session_start", map[string]any{"strategy": cfg.Name})

	var spotSymbols []string
	for _, inst := range cfg.Instruments {
		spotSymbols = append(spotSymbols, feed.SpotSymbol(inst.Name))
	}
	ws := feed.NewWSClient(cfg.Feed.WSURL, spotSymbols)
	rest := feed.NewRESTClient(cfg.Feed.RESTBaseURL, cfg.Feed.RateLimitPerMinute, cfg.Feed.DailyRequestCap)

	core := engine.NewCore(cfg, gate, box)
	live := engine.NewLive(cfg, core, ws, rest)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := live.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("session: %v", err)
	}
	_ = box.WriteEvent("session_end", map[string]any{
		"strategy": cfg.Name, "realized_pnl": gate.RealizedPnL(),
	})
}
