package api

import (
	"github.com/shopspring/decimal"

	"github.com/niodex/relayer/pkg/candle"
	"github.com/niodex/relayer/pkg/order"
)

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SubmitOrderResponse acknowledges an accepted order.
type SubmitOrderResponse struct {
	Status    string `json:"status"`
	OrderHash string `json:"orderHash"`
}

// SubmitTickRequest ingests one market sample for a pair.
type SubmitTickRequest struct {
	Pair string      `json:"pair"`
	Tick candle.Tick `json:"tick"`
}

// PrevPriceResponse reports the last bid seen for a pair before a point in
// time.
type PrevPriceResponse struct {
	Pair  string          `json:"pair"`
	Price decimal.Decimal `json:"price"`
	Dt    int64           `json:"dt"`
}

// WSSubscribeRequest is the client->server control message on the WebSocket.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSOrderEvent is pushed to subscribers of the "orders" channel whenever an
// order is accepted.
type WSOrderEvent struct {
	Type      string             `json:"type"`
	OrderHash string             `json:"orderHash"`
	Order     *order.SignedOrder `json:"order"`
	Timestamp int64              `json:"timestamp"`
}

// WSOrderStateEvent is pushed to subscribers of the "orders" channel when a
// watched order changes validity.
type WSOrderStateEvent struct {
	Type      string `json:"type"`
	OrderHash string `json:"orderHash"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason,omitempty"`
}

// WSTickEvent is pushed to subscribers of "ticks:<pair>" on every ingested
// sample.
type WSTickEvent struct {
	Type string      `json:"type"`
	Pair string      `json:"pair"`
	Tick candle.Tick `json:"tick"`
}
