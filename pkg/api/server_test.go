package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/niodex/relayer/params"
	"github.com/niodex/relayer/pkg/book"
	"github.com/niodex/relayer/pkg/candle"
	"github.com/niodex/relayer/pkg/crypto"
	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/shadow"
	"github.com/niodex/relayer/pkg/storage"
	"github.com/niodex/relayer/pkg/util"
	"github.com/niodex/relayer/pkg/watch"
)

var (
	tokenBase  = common.HexToAddress("0x1111000000000000000000000000000000000001")
	tokenQuote = common.HexToAddress("0x2222000000000000000000000000000000000002")
)

type testEnv struct {
	server  *Server
	store   *storage.Store
	tracker *shadow.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.OpenMem()
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := zap.NewNop()
	clock := util.RealClock{}
	tracker := shadow.NewTracker()
	views := book.NewBuilder(store, tracker, 18)
	watcher := watch.NewExpiryWatcher(log, clock, time.Second)

	cfg := params.Default().API
	return &testEnv{
		server:  NewServer(log, store, views, watcher, clock, cfg),
		store:   store,
		tracker: tracker,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func signedOrder(t *testing.T, makerData, takerData []byte) *order.SignedOrder {
	t.Helper()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	o := &order.SignedOrder{
		MakerAddress:          signer.Address(),
		MakerAssetAmount:      big.NewInt(100),
		TakerAssetAmount:      big.NewInt(200),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(1),
		ExpirationTimeSeconds: big.NewInt(time.Now().Unix() + 3600),
		Salt:                  big.NewInt(1),
		MakerAssetData:        makerData,
		TakerAssetData:        takerData,
	}
	sig, err := crypto.SignOrder(signer, o)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	o.Signature = sig
	return o
}

func TestSubmitAndFetchOrder(t *testing.T) {
	env := newTestEnv(t)
	baseData := order.EncodeERC20AssetData(tokenBase)
	quoteData := order.EncodeERC20AssetData(tokenQuote)
	o := signedOrder(t, baseData, quoteData)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", o)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /orders = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SubmitOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "accepted" {
		t.Errorf("status = %q, want accepted", resp.Status)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/orders/"+resp.OrderHash, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /orders/{hash} = %d: %s", rec.Code, rec.Body.String())
	}
	var got storage.OrderRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode order record: %v", err)
	}
	if got.Order.MakerAddress != o.MakerAddress {
		t.Errorf("maker = %s, want %s", got.Order.MakerAddress.Hex(), o.MakerAddress.Hex())
	}
}

func TestSubmitOrder_RejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	o := signedOrder(t,
		order.EncodeERC20AssetData(tokenBase),
		order.EncodeERC20AssetData(tokenQuote))
	// Claim a different maker than the actual signer.
	o.MakerAddress = common.HexToAddress("0xdead000000000000000000000000000000000001")

	rec := env.do(t, http.MethodPost, "/api/v1/orders", o)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST with forged maker = %d, want 400", rec.Code)
	}
}

func TestSubmitOrder_RejectsExpired(t *testing.T) {
	env := newTestEnv(t)
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	o := &order.SignedOrder{
		MakerAddress:          signer.Address(),
		MakerAssetAmount:      big.NewInt(100),
		TakerAssetAmount:      big.NewInt(200),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(0),
		ExpirationTimeSeconds: big.NewInt(time.Now().Unix() - 10),
		Salt:                  big.NewInt(1),
		MakerAssetData:        order.EncodeERC20AssetData(tokenBase),
		TakerAssetData:        order.EncodeERC20AssetData(tokenQuote),
	}
	sig, err := crypto.SignOrder(signer, o)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	o.Signature = sig

	rec := env.do(t, http.MethodPost, "/api/v1/orders", o)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST expired order = %d, want 400", rec.Code)
	}
}

// rejectingWatcher behaves like a healthy watcher except that it refuses to
// take new orders.
type rejectingWatcher struct {
	watch.Watcher
}

func (w rejectingWatcher) AddOrder(ctx context.Context, o *order.SignedOrder) error {
	return errors.New("watcher unavailable")
}

func TestSubmitOrder_RejectedWhenWatchFails(t *testing.T) {
	store, err := storage.OpenMem()
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := zap.NewNop()
	clock := util.RealClock{}
	tracker := shadow.NewTracker()
	views := book.NewBuilder(store, tracker, 18)
	watcher := rejectingWatcher{watch.NewExpiryWatcher(log, clock, time.Second)}
	env := &testEnv{
		server:  NewServer(log, store, views, watcher, clock, params.Default().API),
		store:   store,
		tracker: tracker,
	}

	o := signedOrder(t,
		order.EncodeERC20AssetData(tokenBase),
		order.EncodeERC20AssetData(tokenQuote))
	rec := env.do(t, http.MethodPost, "/api/v1/orders", o)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("POST with failing watcher = %d, want 500", rec.Code)
	}

	// A rejected submission must leave no live record behind.
	recs, err := store.ListOrders(nil)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("order persisted despite watch failure: %d live records", len(recs))
	}
}

func TestOrderbookEndpoint(t *testing.T) {
	env := newTestEnv(t)
	baseData := order.EncodeERC20AssetData(tokenBase)
	quoteData := order.EncodeERC20AssetData(tokenQuote)

	ask := signedOrder(t, baseData, quoteData)
	if rec := env.do(t, http.MethodPost, "/api/v1/orders", ask); rec.Code != http.StatusOK {
		t.Fatalf("seed ask: %d %s", rec.Code, rec.Body.String())
	}

	path := fmt.Sprintf("/api/v1/orderbook?baseAssetData=%s&quoteAssetData=%s", baseData, quoteData)
	rec := env.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /orderbook = %d: %s", rec.Code, rec.Body.String())
	}
	var bk book.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &bk); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	if bk.Asks.Total != 1 {
		t.Errorf("asks total = %d, want 1", bk.Asks.Total)
	}
	if bk.Bids.Total != 0 {
		t.Errorf("bids total = %d, want 0", bk.Bids.Total)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/orderbook", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /orderbook without pair = %d, want 400", rec.Code)
	}
}

func TestTicksAndCandles(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UnixMilli()

	for i, bid := range []int64{10, 12} {
		req := SubmitTickRequest{
			Pair: "WETH-USDT",
			Tick: candle.Tick{
				Dt:        now - 120_000 + int64(i)*60_000,
				Bid:       decimal.NewFromInt(bid),
				Ask:       decimal.NewFromInt(bid + 1),
				BidVolume: decimal.NewFromInt(1),
				AskVolume: decimal.NewFromInt(1),
			},
		}
		if rec := env.do(t, http.MethodPost, "/api/v1/ticks", req); rec.Code != http.StatusOK {
			t.Fatalf("POST /ticks = %d: %s", rec.Code, rec.Body.String())
		}
	}

	path := fmt.Sprintf("/api/v1/candles?pair=WETH-USDT&from=%d&to=%d&interval=60000", now-120_000, now)
	rec := env.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /candles = %d: %s", rec.Code, rec.Body.String())
	}
	var candles []candle.Candle
	if err := json.Unmarshal(rec.Body.Bytes(), &candles); err != nil {
		t.Fatalf("decode candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if !candles[1].Close.Equal(decimal.NewFromInt(12)) {
		t.Errorf("second candle close = %s, want 12", candles[1].Close)
	}

	prevPath := fmt.Sprintf("/api/v1/prev_price?pair=WETH-USDT&before=%d", now)
	rec = env.do(t, http.MethodGet, prevPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /prev_price = %d: %s", rec.Code, rec.Body.String())
	}
	var prev PrevPriceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &prev); err != nil {
		t.Fatalf("decode prev price: %v", err)
	}
	if !prev.Price.Equal(decimal.NewFromInt(12)) {
		t.Errorf("prev price = %s, want 12", prev.Price)
	}
}

func TestShadowedOrderHiddenFromViews(t *testing.T) {
	env := newTestEnv(t)
	baseData := order.EncodeERC20AssetData(tokenBase)
	quoteData := order.EncodeERC20AssetData(tokenQuote)

	o := signedOrder(t, baseData, quoteData)
	rec := env.do(t, http.MethodPost, "/api/v1/orders", o)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed order: %d %s", rec.Code, rec.Body.String())
	}
	var resp SubmitOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	env.tracker.MarkInvalid(common.HexToHash(resp.OrderHash), time.Now().UnixMilli())

	rec = env.do(t, http.MethodGet, "/api/v1/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /orders = %d", rec.Code)
	}
	var page book.Page[storage.OrderRecord]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("shadowed order visible in query: total = %d", page.Total)
	}

	// The raw lookup by hash still serves the record.
	rec = env.do(t, http.MethodGet, "/api/v1/orders/"+resp.OrderHash, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /orders/{hash} for shadowed order = %d, want 200", rec.Code)
	}
}
