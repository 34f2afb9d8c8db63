// Package api is the HTTP surface of the relayer: the standard relayer REST
// endpoints plus a WebSocket feed for accepted orders and ingested ticks.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/niodex/relayer/params"
	"github.com/niodex/relayer/pkg/book"
	"github.com/niodex/relayer/pkg/candle"
	"github.com/niodex/relayer/pkg/crypto"
	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/storage"
	"github.com/niodex/relayer/pkg/util"
	"github.com/niodex/relayer/pkg/watch"
)

// Server handles the REST API and WebSocket connections.
type Server struct {
	log     *zap.Logger
	store   *storage.Store
	views   *book.Builder
	watcher watch.Watcher
	clock   util.Clock
	cfg     params.API

	router *mux.Router
	hub    *Hub
}

func NewServer(log *zap.Logger, store *storage.Store, views *book.Builder, watcher watch.Watcher, clock util.Clock, cfg params.API) *Server {
	s := &Server{
		log:     log,
		store:   store,
		views:   views,
		watcher: watcher,
		clock:   clock,
		cfg:     cfg,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
	}
	s.setupRoutes()

	// Validity transitions go out on the same channel as acceptances so a
	// client can keep its local book in sync from one subscription.
	watcher.Subscribe(func(err error, n *watch.Notification) {
		if err != nil || n == nil {
			return
		}
		s.hub.BroadcastToChannel("orders", WSOrderStateEvent{
			Type:      "order_state",
			OrderHash: n.OrderHash.Hex(),
			Kind:      string(n.Kind),
			Reason:    n.Reason,
		})
	})
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/asset_pairs", s.handleGetAssetPairs).Methods("GET")
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{hash}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/candles", s.handleGetCandles).Methods("GET")
	api.HandleFunc("/prev_price", s.handleGetPrevPrice).Methods("GET")
	api.HandleFunc("/ticks", s.handleSubmitTick).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wired HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP on the configured address.
func (s *Server) Start() error {
	go s.hub.Run()
	s.log.Info("api server starting", zap.String("addr", s.cfg.ListenAddr))
	return http.ListenAndServe(s.cfg.ListenAddr, s.Handler())
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetAssetPairs(w http.ResponseWriter, r *http.Request) {
	assetDataA, err := parseAssetData(r, "assetDataA")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid assetDataA", err.Error())
		return
	}
	assetDataB, err := parseAssetData(r, "assetDataB")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid assetDataB", err.Error())
		return
	}
	page, perPage := s.parsePagination(r)

	pairs, err := s.views.AssetPairs(assetDataA, assetDataB, page, perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list asset pairs", err.Error())
		return
	}
	respondJSON(w, pairs)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	baseAssetData, err := parseAssetData(r, "baseAssetData")
	if err != nil || len(baseAssetData) == 0 {
		respondError(w, http.StatusBadRequest, "invalid baseAssetData", "")
		return
	}
	quoteAssetData, err := parseAssetData(r, "quoteAssetData")
	if err != nil || len(quoteAssetData) == 0 {
		respondError(w, http.StatusBadRequest, "invalid quoteAssetData", "")
		return
	}
	page, perPage := s.parsePagination(r)

	bk, err := s.views.BuildBook(baseAssetData, quoteAssetData, page, perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build orderbook", err.Error())
		return
	}
	respondJSON(w, bk)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}
	page, perPage := s.parsePagination(r)

	orders, err := s.views.QueryOrders(filters, page, perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query orders", err.Error())
		return
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	hashStr := mux.Vars(r)["hash"]
	if len(hashStr) != 66 || hashStr[:2] != "0x" {
		respondError(w, http.StatusBadRequest, "invalid order hash", "")
		return
	}
	hash := common.HexToHash(hashStr)

	o, err := s.store.GetOrder(hash)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load order", err.Error())
		return
	}
	respondJSON(w, storage.OrderRecord{Hash: hash, Order: o})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var o order.SignedOrder
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order JSON", err.Error())
		return
	}
	if err := o.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "malformed order", err.Error())
		return
	}

	valid, err := crypto.VerifyOrderSignature(&o)
	if err != nil {
		respondError(w, http.StatusBadRequest, "signature verification failed", err.Error())
		return
	}
	if !valid {
		respondError(w, http.StatusBadRequest, "invalid signature", "signer is not the maker")
		return
	}

	if err := s.watcher.ValidateOrder(r.Context(), &o); err != nil {
		respondError(w, http.StatusBadRequest, "order rejected", err.Error())
		return
	}

	hash, err := crypto.HashOrder(&o)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash order", err.Error())
		return
	}

	// The order goes under watch before it is persisted; a live record must
	// never exist without a watcher entry behind it.
	if err := s.watcher.AddOrder(r.Context(), &o); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to watch order", err.Error())
		return
	}
	if err := s.store.SaveOrder(hash, &o); err != nil {
		s.watcher.RemoveOrder(hash)
		respondError(w, http.StatusInternalServerError, "failed to persist order", err.Error())
		return
	}

	s.log.Info("order accepted", zap.String("hash", hash.Hex()),
		zap.String("maker", o.MakerAddress.Hex()))
	s.hub.BroadcastToChannel("orders", WSOrderEvent{
		Type:      "order",
		OrderHash: hash.Hex(),
		Order:     &o,
		Timestamp: s.clock.Now().UnixMilli(),
	})

	respondJSON(w, SubmitOrderResponse{Status: "accepted", OrderHash: hash.Hex()})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	var maker *common.Address
	if m := r.URL.Query().Get("makerAddress"); m != "" {
		if !common.IsHexAddress(m) {
			respondError(w, http.StatusBadRequest, "invalid makerAddress", "")
			return
		}
		addr := common.HexToAddress(m)
		maker = &addr
	}
	page, perPage := s.parsePagination(r)

	recs, err := s.store.ListHistory(maker)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list history", err.Error())
		return
	}
	respondJSON(w, book.Paginate(recs, page, perPage))
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := q.Get("pair")
	if pair == "" {
		respondError(w, http.StatusBadRequest, "missing pair", "")
		return
	}
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	interval, err3 := strconv.ParseInt(q.Get("interval"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || interval <= 0 || to <= from {
		respondError(w, http.StatusBadRequest, "invalid range", "from, to and interval must be integers with from < to and interval > 0")
		return
	}

	ticks, err := s.store.TicksBetween(pair, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load ticks", err.Error())
		return
	}

	candles := candle.Aggregate(ticks, to, interval, s.clock.Now().UnixMilli())
	if candles == nil {
		candles = []candle.Candle{}
	}
	respondJSON(w, candles)
}

func (s *Server) handleGetPrevPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := q.Get("pair")
	if pair == "" {
		respondError(w, http.StatusBadRequest, "missing pair", "")
		return
	}
	before := s.clock.Now().UnixMilli()
	if b := q.Get("before"); b != "" {
		v, err := strconv.ParseInt(b, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid before", err.Error())
			return
		}
		before = v
	}

	tick, ok, err := s.store.LastTickBefore(pair, before)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load tick", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "no price recorded", "")
		return
	}
	respondJSON(w, PrevPriceResponse{Pair: pair, Price: tick.Bid, Dt: tick.Dt})
}

func (s *Server) handleSubmitTick(w http.ResponseWriter, r *http.Request) {
	var req SubmitTickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid tick JSON", err.Error())
		return
	}
	if req.Pair == "" {
		respondError(w, http.StatusBadRequest, "missing pair", "")
		return
	}

	if err := s.store.SaveTick(req.Pair, req.Tick); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist tick", err.Error())
		return
	}

	s.hub.BroadcastToChannel("ticks:"+req.Pair, WSTickEvent{
		Type: "tick",
		Pair: req.Pair,
		Tick: req.Tick,
	})
	respondJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) parsePagination(r *http.Request) (page, perPage int) {
	q := r.URL.Query()
	page = 1
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}
	perPage = s.cfg.DefaultPerPage
	if v, err := strconv.Atoi(q.Get("perPage")); err == nil && v > 0 {
		perPage = v
	}
	if perPage > s.cfg.MaxPerPage {
		perPage = s.cfg.MaxPerPage
	}
	return page, perPage
}

func parseAssetData(r *http.Request, key string) (hexutil.Bytes, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	return hexutil.Decode(v)
}

func parseFilters(r *http.Request) (*book.Filters, error) {
	q := r.URL.Query()
	f := &book.Filters{}

	addrFields := map[string]**common.Address{
		"exchangeAddress":     &f.ExchangeAddress,
		"senderAddress":       &f.SenderAddress,
		"makerAddress":        &f.MakerAddress,
		"takerAddress":        &f.TakerAddress,
		"feeRecipientAddress": &f.FeeRecipientAddress,
		"traderAddress":       &f.Trader,
		"makerAssetAddress":   &f.MakerAssetAddress,
		"takerAssetAddress":   &f.TakerAssetAddress,
	}
	for key, dst := range addrFields {
		v := q.Get(key)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return nil, errInvalidParam(key)
		}
		addr := common.HexToAddress(v)
		*dst = &addr
	}

	var err error
	if f.MakerAssetData, err = parseAssetData(r, "makerAssetData"); err != nil {
		return nil, errInvalidParam("makerAssetData")
	}
	if f.TakerAssetData, err = parseAssetData(r, "takerAssetData"); err != nil {
		return nil, errInvalidParam("takerAssetData")
	}

	kindFields := map[string]**order.ProxyKind{
		"makerAssetKind": &f.MakerAssetKind,
		"takerAssetKind": &f.TakerAssetKind,
	}
	for key, dst := range kindFields {
		v := q.Get(key)
		if v == "" {
			continue
		}
		kind := order.ProxyKind(v)
		switch kind {
		case order.KindERC20, order.KindERC721, order.KindMultiAsset, order.KindStaticCall:
			*dst = &kind
		default:
			return nil, errInvalidParam(key)
		}
	}

	return f, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid parameter: " + string(e) }

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
