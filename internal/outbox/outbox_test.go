package outbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/lifecycle"
	"github.com/anrvee/optionflow/internal/market"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "trades.jsonl")
	box, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	trade := &lifecycle.Trade{
		ID:         "t-NIFTY-CE-1",
		Instrument: "NIFTY",
		Key:        market.ContractKey{Strike: 24000, OptionType: market.CE, ExpiryType: market.Week, ExpiryCode: 1},
		Direction:  config.Sell,
		AvgEntry:   107.5,
		Quantity:   600,
		ExitTS:     time.Date(2026, 8, 3, 14, 30, 0, 0, time.UTC),
		ExitPrice:  99,
		ExitReason: lifecycle.ExitEndOfDay,
		PnL:        5100,
	}
	if err := box.WriteTrade(trade); err != nil {
		t.Fatalf("WriteTrade: %v", err)
	}
	if err := box.WriteEvent("session_end", map[string]any{"strategy": "t"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	got, err := ReadTrades(path)
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("read %d trades, want 1 (events must be skipped)", len(got))
	}
	if got[0].ID != trade.ID || got[0].PnL != trade.PnL || got[0].Key != trade.Key {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
}

func TestReadToleratesTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	box, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := box.WriteTrade(&lifecycle.Trade{ID: "a"}); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"type":"trade","at":"2026-08-03T10:0`) // crash mid-write
	f.Close()

	got, err := ReadTrades(path)
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("got %+v, want the one whole trade", got)
	}
}

func TestReadMissingFile(t *testing.T) {
	got, err := ReadTrades(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil || got != nil {
		t.Errorf("missing file should read as empty, got %v %v", got, err)
	}
}
