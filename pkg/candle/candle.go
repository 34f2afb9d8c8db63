package candle

import (
	"github.com/shopspring/decimal"
)

// Tick is one persisted market sample for a trading pair: best bid/ask and
// the volumes behind them at time Dt (unix milliseconds). Ticks are
// append-only and never mutated.
type Tick struct {
	Dt        int64           `json:"dt"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	BidVolume decimal.Decimal `json:"bid_vol"`
	AskVolume decimal.Decimal `json:"ask_vol"`
}

// Candle is a derived OHLVC summary of one fixed-width time bucket. It has no
// identity beyond its bucket start and is recomputed on every query.
type Candle struct {
	Time   int64           `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}
