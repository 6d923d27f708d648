// Package feed supplies live market data: a websocket stream of trade
// prints and a rate-limited REST client for warm-up history. Symbols on
// the wire are colon-joined, e.g. "NIFTY:24000:CE:W1" for a contract and
// "NIFTY:SPOT" for the underlying.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
)

// SpotTick is an underlying price print, distinct from contract ticks.
type SpotTick struct {
	Instrument string
	Price      float64
	TS         time.Time
}

// wire message for both directions
type wsMessage struct {
	Op      string   `json:"op,omitempty"` // subscribe
	Symbols []string `json:"symbols,omitempty"`
	Symbol  string   `json:"symbol,omitempty"`
	LTP     float64  `json:"ltp,omitempty"`
	TS      int64    `json:"ts,omitempty"` // unix millis
}

// Symbol encodes a contract for the wire.
func Symbol(inst string, k market.ContractKey) string {
	exp := "W"
	if k.ExpiryType == market.Month {
		exp = "M"
	}
	return fmt.Sprintf("%s:%.0f:%s:%s%d", inst, k.Strike, k.OptionType, exp, k.ExpiryCode)
}

// SpotSymbol encodes an underlying for the wire.
func SpotSymbol(inst string) string { return inst + ":SPOT" }

// ParseSymbol decodes a wire symbol. spot is true for underlying prints.
func ParseSymbol(s string) (inst string, key market.ContractKey, spot bool, err error) {
	parts := strings.Split(s, ":")
	if len(parts) == 2 && parts[1] == "SPOT" {
		return parts[0], market.ContractKey{}, true, nil
	}
	if len(parts) != 4 {
		return "", market.ContractKey{}, false, fmt.Errorf("bad symbol %q", s)
	}
	strike, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", market.ContractKey{}, false, fmt.Errorf("bad strike in %q", s)
	}
	exp := market.Week
	code := parts[3]
	if strings.HasPrefix(code, "M") {
		exp = market.Month
	} else if !strings.HasPrefix(code, "W") {
		return "", market.ContractKey{}, false, fmt.Errorf("bad expiry in %q", s)
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil {
		return "", market.ContractKey{}, false, fmt.Errorf("bad expiry code in %q", s)
	}
	ot := market.OptionType(parts[2])
	if ot != market.CE && ot != market.PE {
		return "", market.ContractKey{}, false, fmt.Errorf("bad option type in %q", s)
	}
	return parts[0], market.ContractKey{
		Strike:     strike,
		OptionType: ot,
		ExpiryType: exp,
		ExpiryCode: n,
	}, false, nil
}

// WSClient maintains one websocket subscription and republishes prints on
// typed channels. It reconnects with capped backoff until the context is
// cancelled; subscriptions are replayed after each reconnect.
type WSClient struct {
	url string

	mu      sync.Mutex
	symbols []string
	conn    *websocket.Conn

	Ticks chan market.Tick
	Spots chan SpotTick
}

func NewWSClient(url string, symbols []string) *WSClient {
	return &WSClient{
		url:     url,
		symbols: symbols,
		Ticks:   make(chan market.Tick, 1024),
		Spots:   make(chan SpotTick, 256),
	}
}

// Subscribe adds symbols to the subscription. Sent immediately when a
// connection is up; always replayed on reconnect.
func (c *WSClient) Subscribe(symbols []string) error {
	c.mu.Lock()
	c.symbols = append(c.symbols, symbols...)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.WriteJSON(wsMessage{Op: "subscribe", Symbols: symbols})
}

// Run blocks until ctx is done, reconnecting as needed.
func (c *WSClient) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		observ.Warn("ws_disconnected", map[string]any{"err": fmt.Sprint(err), "retry_in": backoff.String()})
		observ.IncCounter("ws_reconnects_total", nil)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *WSClient) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	symbols := append([]string(nil), c.symbols...)
	err = conn.WriteJSON(wsMessage{Op: "subscribe", Symbols: symbols})
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	observ.Log("ws_connected", map[string]any{"url": c.url, "symbols": len(symbols)})

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	go func() {
		tick := time.NewTicker(30 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-tick.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Symbol == "" {
			continue
		}
		inst, key, spot, err := ParseSymbol(msg.Symbol)
		if err != nil {
			observ.IncCounter("ws_bad_symbols_total", nil)
			continue
		}
		ts := time.UnixMilli(msg.TS).UTC()
		if spot {
			select {
			case c.Spots <- SpotTick{Instrument: inst, Price: msg.LTP, TS: ts}:
			default:
				observ.IncCounter("ws_dropped_total", map[string]string{"kind": "spot"})
			}
			continue
		}
		select {
		case c.Ticks <- market.Tick{Instrument: inst, Key: key, Price: msg.LTP, TS: ts}:
		default:
			observ.IncCounter("ws_dropped_total", map[string]string{"kind": "tick"})
		}
	}
}
