package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/engine"
	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
	"github.com/anrvee/optionflow/internal/outbox"
	"github.com/anrvee/optionflow/internal/risk"
	"github.com/anrvee/optionflow/internal/store"
)

func main() {
	log.SetFlags(0)
	strategyPath := flag.String("strategy", "config/strategy.yaml", "strategy file")
	from := flag.String("from", "", "override backtest start (YYYY-MM-DD)")
	to := flag.String("to", "", "override backtest end (YYYY-MM-DD)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*strategyPath)
	if err != nil {
		log.Fatalf("load strategy: %v", err)
	}
	if *from != "" {
		cfg.BacktestStart = *from
	}
	if *to != "" {
		cfg.BacktestEnd = *to
	}
	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		cfg.Store.ClickHouseDSN = dsn
	}
	observ.Init(cfg.LogLevel)

	indexes, err := loadIndexes(cfg)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}

	gate := risk.NewManager(cfg.InitialCapital, cfg.Risk.MaxDailyLossPct)
	box, err := outbox.New(cfg.OutboxPath)
	if err != nil {
		log.Fatalf("open outbox: %v", err)
	}

	replay, err := engine.NewReplay(cfg, gate, box, indexes)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	summary := replay.Run()
	_ = box.WriteEvent("backtest_done", map[string]any{
		"strategy": cfg.Name, "from": cfg.BacktestStart, "to": cfg.BacktestEnd,
		"trades": summary.Trades, "pnl": summary.TotalPnL,
	})

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}

func loadIndexes(cfg config.Strategy) (map[string]*market.Index, error) {
	indexes := map[string]*market.Index{}
	if cfg.Store.CSVPath != "" {
		for _, inst := range cfg.Instruments {
			idx, err := store.LoadCSV(cfg.Store.CSVPath, inst)
			if err != nil {
				return nil, err
			}
			indexes[inst.Name] = idx
		}
		return indexes, nil
	}

	ch, err := store.OpenCH(cfg.Store)
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	for _, inst := range cfg.Instruments {
		idx, err := ch.LoadRange(context.Background(), inst, cfg.BacktestStart, cfg.BacktestEnd)
		if err != nil {
			return nil, err
		}
		indexes[inst.Name] = idx
	}
	return indexes, nil
}
