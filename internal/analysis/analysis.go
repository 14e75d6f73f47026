package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/ktrade/sentinel/internal/store"
)

// Summary aggregates trade outcomes over a trailing window.
type Summary struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	TradeCount    int       `json:"trade_count"`
	WinningTrades int       `json:"winning_trades"`
	LosingTrades  int       `json:"losing_trades"`
	WinRatePct    float64   `json:"win_rate_pct"`
	RealizedPnL   float64   `json:"realized_pnl"`
	GrossProfit   float64   `json:"gross_profit"`
	GrossLoss     float64   `json:"gross_loss"`
	ProfitFactor  float64   `json:"profit_factor"`
	MaxDrawdown   float64   `json:"max_drawdown"`
}

// Comparison puts the current window next to the prior one.
type Comparison struct {
	Current  Summary `json:"current"`
	Previous Summary `json:"previous"`
}

// PnLDelta is the change in realized P&L between the two periods.
func (c Comparison) PnLDelta() float64 {
	return c.Current.RealizedPnL - c.Previous.RealizedPnL
}

// Compute aggregates metrics over trades ordered by close time.
// MaxDrawdown is the largest peak-to-trough decline of the cumulative
// realized P&L curve, as an absolute amount.
func Compute(trades []store.Trade, from, to time.Time) Summary {
	s := Summary{From: from, To: to}
	var cumulative, peak, maxDD float64
	for _, t := range trades {
		s.TradeCount++
		s.RealizedPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			s.WinningTrades++
			s.GrossProfit += t.RealizedPnL
		} else if t.RealizedPnL < 0 {
			s.LosingTrades++
			s.GrossLoss += -t.RealizedPnL
		}
		cumulative += t.RealizedPnL
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	s.MaxDrawdown = maxDD
	if s.TradeCount > 0 {
		s.WinRatePct = float64(s.WinningTrades) / float64(s.TradeCount) * 100
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	} else if s.GrossProfit > 0 {
		s.ProfitFactor = s.GrossProfit
	}
	return s
}

// Windows loads the trailing window ending at now and the period before it
// from the store and computes both summaries.
func Windows(ctx context.Context, st store.Store, now time.Time, window time.Duration) (Comparison, error) {
	var c Comparison
	curFrom := now.Add(-window)
	prevFrom := now.Add(-2 * window)

	cur, err := st.ClosedTrades(ctx, curFrom, now)
	if err != nil {
		return c, fmt.Errorf("load current window: %w", err)
	}
	prev, err := st.ClosedTrades(ctx, prevFrom, curFrom)
	if err != nil {
		return c, fmt.Errorf("load previous window: %w", err)
	}
	c.Current = Compute(cur, curFrom, now)
	c.Previous = Compute(prev, prevFrom, curFrom)
	return c, nil
}
