// Package risk gates entries. The manager carries a manual kill switch
// and a daily realized-loss circuit breaker; either one being tripped
// stops new entries while leaving exits alone.
package risk

import (
	"fmt"
	"sync"

	"github.com/anrvee/optionflow/internal/observ"
)

// Manager tracks realized P&L for the session and decides whether new
// entries are allowed. Safe for concurrent use: the live driver's feed
// goroutine and signal handler both touch it.
type Manager struct {
	mu sync.Mutex

	capital     float64
	maxLossPct  float64
	realizedPnL float64

	killed     bool
	killReason string
}

// NewManager sizes the daily-loss breaker as a percentage of starting
// capital.
func NewManager(capital, maxLossPct float64) *Manager {
	return &Manager{capital: capital, maxLossPct: maxLossPct}
}

// CanEnter reports whether a new entry may start, with the blocking
// reason when it may not.
func (m *Manager) CanEnter() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killed {
		return false, m.killReason
	}
	return true, ""
}

// Kill trips the switch manually. Idempotent.
func (m *Manager) Kill(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kill(reason)
}

func (m *Manager) kill(reason string) {
	if m.killed {
		return
	}
	m.killed = true
	m.killReason = reason
	observ.Log("kill_switch", map[string]any{"reason": reason, "realized_pnl": m.realizedPnL})
	observ.IncCounter("kill_switch_total", map[string]string{"reason": reason})
	observ.SetGauge("kill_switch_active", 1, nil)
}

// Killed reports whether the switch is tripped.
func (m *Manager) Killed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}

// KillReason returns why the switch tripped, empty while it is armed.
func (m *Manager) KillReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killReason
}

// RecordPnL folds one realized result into the session total and trips
// the switch when the loss crosses the configured share of capital.
func (m *Manager) RecordPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realizedPnL += pnl
	observ.SetGauge("realized_pnl", m.realizedPnL, nil)
	limit := m.capital * m.maxLossPct / 100
	if limit > 0 && -m.realizedPnL >= limit {
		m.kill(fmt.Sprintf("daily loss %.2f breached limit %.2f", -m.realizedPnL, limit))
	}
}

// RealizedPnL returns the session's realized total.
func (m *Manager) RealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realizedPnL
}

// StartDay resets the session total and re-arms the breaker. The manual
// kill survives day boundaries only if re-issued.
func (m *Manager) StartDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realizedPnL = 0
	m.killed = false
	m.killReason = ""
	observ.SetGauge("kill_switch_active", 0, nil)
	observ.SetGauge("realized_pnl", 0, nil)
}
