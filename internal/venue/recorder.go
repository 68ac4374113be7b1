package venue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// TradeRecorder captures closed trades for later inspection.
type TradeRecorder interface {
	Record(market.Trade)
}

// JSONLRecorder appends trades as JSON lines. Every write is best-effort:
// persistence failures never reach the trading control flow.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single trade to the underlying JSONL file.
func (r *JSONLRecorder) Record(trade market.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(trade)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// MemoryRecorder stores closed trades in memory for quick inspection, e.g.
// through the stats endpoint.
type MemoryRecorder struct {
	mu     sync.Mutex
	trades []market.Trade
}

// NewMemoryRecorder creates an empty recorder, optionally pre-sizing storage.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryRecorder{trades: make([]market.Trade, 0, capacity)}
}

// Record appends a trade.
func (r *MemoryRecorder) Record(trade market.Trade) {
	r.mu.Lock()
	r.trades = append(r.trades, trade)
	r.mu.Unlock()
}

// Snapshot returns a copy of the recorded trades.
func (r *MemoryRecorder) Snapshot() []market.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]market.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

// Reset clears all stored trades.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	r.trades = r.trades[:0]
	r.mu.Unlock()
}

// MultiRecorder fans a trade out to every child recorder.
type MultiRecorder []TradeRecorder

// Record forwards the trade to each child.
func (m MultiRecorder) Record(trade market.Trade) {
	for _, r := range m {
		if r != nil {
			r.Record(trade)
		}
	}
}

// SessionSummary is the per-run rollup appended to the sessions file.
type SessionSummary struct {
	StartedAt  time.Time `json:"startedAt"`
	ElapsedSec float64   `json:"elapsedSec"`
	Trades     int       `json:"trades"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	WinRate    float64   `json:"winRate"`
	TotalPnl   float64   `json:"totalPnl"`
	Batches    int       `json:"batches"`
	Skipped    int       `json:"skipped"`
}

// SaveSession upserts the summary keyed by StartedAt into a JSON array file.
// Failures are swallowed; session tracking must never break a shutdown.
func SaveSession(path string, summary SessionSummary) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	var sessions []SessionSummary
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &sessions)
	}
	replaced := false
	for i, s := range sessions {
		if s.StartedAt.Equal(summary.StartedAt) {
			sessions[i] = summary
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, summary)
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}
