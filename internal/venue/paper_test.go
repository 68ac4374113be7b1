package venue

import (
	"context"
	"testing"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

func TestPaperOpenRequiresMark(t *testing.T) {
	p := NewPaper(1000, NewMarkMap())
	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, 100); err == nil {
		t.Fatal("expected error with no mark price")
	}
}

func TestPaperOpenRejectsBadSize(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("SOL/USDC", 100)
	p := NewPaper(1000, marks)
	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, 0); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, -5); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestPaperOpenInsufficientCash(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("SOL/USDC", 100)
	p := NewPaper(50, marks)
	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, 100); err == nil {
		t.Fatal("expected insufficient cash error")
	}
	if got := p.Cash(); got != 50 {
		t.Fatalf("cash changed on rejected open: %v", got)
	}
}

func TestPaperLongRoundTrip(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("SOL/USDC", 100)
	p := NewPaper(1000, marks)

	open, err := p.Open(context.Background(), "SOL/USDC", market.Long, 100)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !open.Success || open.EntryPrice != 100 {
		t.Fatalf("unexpected open result: %+v", open)
	}
	if got := p.Cash(); got != 900 {
		t.Fatalf("cash after open = %v, want 900", got)
	}

	marks.Set("SOL/USDC", 150)
	if got := p.Equity(); got != 1050 {
		t.Fatalf("marked equity = %v, want 1050", got)
	}

	res, err := p.Close(context.Background(), "SOL/USDC")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !res.Success || res.Pnl != 50 {
		t.Fatalf("unexpected close result: %+v", res)
	}
	if got := p.Cash(); got != 1050 {
		t.Fatalf("cash after close = %v, want 1050", got)
	}
	if got := p.RealizedPnL(); got != 50 {
		t.Fatalf("realized = %v, want 50", got)
	}
}

func TestPaperShortProfitsOnDrop(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("WIF/USDC", 100)
	p := NewPaper(1000, marks)

	if _, err := p.Open(context.Background(), "WIF/USDC", market.Short, 100); err != nil {
		t.Fatalf("open: %v", err)
	}
	marks.Set("WIF/USDC", 50)
	res, err := p.Close(context.Background(), "WIF/USDC")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.Pnl != 50 {
		t.Fatalf("short pnl = %v, want 50", res.Pnl)
	}
}

func TestPaperCloseNoLotsIsNoop(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("SOL/USDC", 100)
	p := NewPaper(1000, marks)

	res, err := p.Close(context.Background(), "SOL/USDC")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !res.Success || res.Pnl != 0 {
		t.Fatalf("no-op close: %+v", res)
	}
	if got := p.Cash(); got != 1000 {
		t.Fatalf("cash = %v, want 1000", got)
	}
}

func TestPaperCloseRequiresMark(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("SOL/USDC", 100)
	p := NewPaper(1000, marks)
	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, 100); err != nil {
		t.Fatalf("open: %v", err)
	}
	marks.Set("SOL/USDC", 0)
	if _, err := p.Close(context.Background(), "SOL/USDC"); err == nil {
		t.Fatal("expected error closing without a mark")
	}
}

func TestPaperCloseSettlesAllLots(t *testing.T) {
	marks := NewMarkMap()
	marks.Set("SOL/USDC", 100)
	p := NewPaper(1000, marks)

	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, 100); err != nil {
		t.Fatalf("open: %v", err)
	}
	marks.Set("SOL/USDC", 200)
	if _, err := p.Open(context.Background(), "SOL/USDC", market.Long, 100); err != nil {
		t.Fatalf("open: %v", err)
	}

	marks.Set("SOL/USDC", 300)
	res, err := p.Close(context.Background(), "SOL/USDC")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// lot 1: (300-100)/100*100 = 200, lot 2: (300-200)/200*100 = 50
	if res.Pnl != 250 {
		t.Fatalf("combined pnl = %v, want 250", res.Pnl)
	}
	if got := p.Cash(); got != 1250 {
		t.Fatalf("cash = %v, want 1250", got)
	}

	again, err := p.Close(context.Background(), "SOL/USDC")
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if again.Pnl != 0 {
		t.Fatalf("second close pnl = %v, want 0", again.Pnl)
	}
}

func TestMarkMapUnknownSymbol(t *testing.T) {
	marks := NewMarkMap()
	if got := marks.Mark("SOL/USDC"); got != 0 {
		t.Fatalf("unknown mark = %v, want 0", got)
	}
}
