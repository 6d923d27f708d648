// Package outbox persists the trade log as append-only JSONL. Each line
// is one envelope; readers tolerate a torn final line after a crash.
package outbox

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/anrvee/optionflow/internal/lifecycle"
)

type Entry struct {
	Type string          `json:"type"` // trade | event
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

type Outbox struct {
	path string
}

func New(path string) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Outbox{path: path}, nil
}

// WriteTrade appends one closed trade.
func (o *Outbox) WriteTrade(t *lifecycle.Trade) error {
	return o.append("trade", t)
}

// WriteEvent appends one run-level event (session start, kill switch,
// warmup summary).
func (o *Outbox) WriteEvent(event string, fields map[string]any) error {
	payload := map[string]any{"event": event}
	for k, v := range fields {
		payload[k] = v
	}
	return o.append("event", payload)
}

func (o *Outbox) append(kind string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	line, err := json.Marshal(Entry{Type: kind, At: time.Now().UTC(), Data: raw})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// ReadTrades loads every trade entry back, skipping torn or foreign
// lines. Used by the report command and tests.
func ReadTrades(path string) ([]lifecycle.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var trades []lifecycle.Trade
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.Type != "trade" {
			continue
		}
		var t lifecycle.Trade
		if err := json.Unmarshal(e.Data, &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, sc.Err()
}
