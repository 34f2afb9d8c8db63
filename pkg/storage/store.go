package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/niodex/relayer/pkg/candle"
	"github.com/niodex/relayer/pkg/order"
)

// ErrNotFound is returned when a keyed lookup has no record.
var ErrNotFound = errors.New("storage: not found")

// Store persists the live order set, the terminal order history, and raw tick
// history in Pebble. Live orders are keyed by order hash; a hash has at most
// one live record and at most one terminal history record.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMem opens an in-memory store. Used by tests.
func OpenMem() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// keys: o:<32-byte-hash>, h:<32-byte-hash>, t:<pair>:<8-byte-ms>
func kOrder(h common.Hash) []byte   { return append([]byte("o:"), h[:]...) }
func kHistory(h common.Hash) []byte { return append([]byte("h:"), h[:]...) }

func kTick(pair string, dt int64) []byte {
	key := tickPrefix(pair)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(dt))
	return append(key, ts[:]...)
}

func tickPrefix(pair string) []byte {
	return append(append([]byte("t:"), pair...), ':')
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}

// ============================================================================
// Live orders
// ============================================================================

// OrderRecord is a live order together with its identity hash.
type OrderRecord struct {
	Hash  common.Hash        `json:"hash"`
	Order *order.SignedOrder `json:"order"`
}

// OrderFilter is an exact-match conjunction over order fields. Nil fields
// impose no constraint. It is applied inside the store scan so callers never
// see non-matching rows.
type OrderFilter struct {
	ExchangeAddress     *common.Address
	SenderAddress       *common.Address
	MakerAddress        *common.Address
	TakerAddress        *common.Address
	FeeRecipientAddress *common.Address
	MakerAssetData      hexutil.Bytes
	TakerAssetData      hexutil.Bytes
}

// Match reports whether o satisfies every set constraint.
func (f *OrderFilter) Match(o *order.SignedOrder) bool {
	if f == nil {
		return true
	}
	if f.ExchangeAddress != nil && o.ExchangeAddress != *f.ExchangeAddress {
		return false
	}
	if f.SenderAddress != nil && o.SenderAddress != *f.SenderAddress {
		return false
	}
	if f.MakerAddress != nil && o.MakerAddress != *f.MakerAddress {
		return false
	}
	if f.TakerAddress != nil && o.TakerAddress != *f.TakerAddress {
		return false
	}
	if f.FeeRecipientAddress != nil && o.FeeRecipientAddress != *f.FeeRecipientAddress {
		return false
	}
	if len(f.MakerAssetData) > 0 && !bytesEqual(f.MakerAssetData, o.MakerAssetData) {
		return false
	}
	if len(f.TakerAssetData) > 0 && !bytesEqual(f.TakerAssetData, o.TakerAssetData) {
		return false
	}
	return true
}

func bytesEqual(a, b hexutil.Bytes) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SaveOrder inserts or replaces the live record for hash.
func (s *Store) SaveOrder(hash common.Hash, o *order.SignedOrder) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", hash.Hex(), err)
	}
	if err := s.db.Set(kOrder(hash), data, pebble.Sync); err != nil {
		return fmt.Errorf("save order %s: %w", hash.Hex(), err)
	}
	return nil
}

// GetOrder returns the live order for hash, or ErrNotFound.
func (s *Store) GetOrder(hash common.Hash) (*order.SignedOrder, error) {
	data, closer, err := s.db.Get(kOrder(hash))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", hash.Hex(), err)
	}
	defer closer.Close()

	var o order.SignedOrder
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", hash.Hex(), err)
	}
	return &o, nil
}

// ListOrders scans the live order set and returns every record matching the
// filter, in hash order.
func (s *Store) ListOrders(f *OrderFilter) ([]OrderRecord, error) {
	prefix := []byte("o:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer iter.Close()

	var records []OrderRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var o order.SignedOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %x: %w", iter.Key(), err)
		}
		if !f.Match(&o) {
			continue
		}
		var hash common.Hash
		copy(hash[:], iter.Key()[len(prefix):])
		records = append(records, OrderRecord{Hash: hash, Order: &o})
	}
	return records, iter.Error()
}

// DeleteOrders removes the live records for hashes in one atomic batch.
// An empty batch is a no-op.
func (s *Store) DeleteOrders(hashes []common.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, h := range hashes {
		if err := batch.Delete(kOrder(h), nil); err != nil {
			return fmt.Errorf("delete order %s: %w", h.Hex(), err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit order deletes: %w", err)
	}
	return nil
}

// ============================================================================
// Terminal history
// ============================================================================

// HistoryRecord is a terminal (Canceled/Executed) snapshot of an order.
type HistoryRecord struct {
	Hash   common.Hash        `json:"hash"`
	Status order.Status       `json:"status"`
	Order  *order.SignedOrder `json:"order"`
}

// RecordHistory writes the terminal record for hash. The write is idempotent
// with first-write-wins semantics: once a terminal status exists it is never
// overwritten, so a provisional Canceled survives a later Executed attempt.
func (s *Store) RecordHistory(hash common.Hash, o *order.SignedOrder, status order.Status) error {
	key := kHistory(hash)
	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return nil // already terminal
	}
	if err != pebble.ErrNotFound {
		return fmt.Errorf("check history %s: %w", hash.Hex(), err)
	}

	data, err := json.Marshal(HistoryRecord{Hash: hash, Status: status, Order: o})
	if err != nil {
		return fmt.Errorf("marshal history %s: %w", hash.Hex(), err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("save history %s: %w", hash.Hex(), err)
	}
	return nil
}

// GetHistory returns the terminal record for hash, or ErrNotFound.
func (s *Store) GetHistory(hash common.Hash) (*HistoryRecord, error) {
	data, closer, err := s.db.Get(kHistory(hash))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", hash.Hex(), err)
	}
	defer closer.Close()

	var rec HistoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal history %s: %w", hash.Hex(), err)
	}
	return &rec, nil
}

// ListHistory returns terminal records, optionally filtered to a maker
// address, newest salt first.
func (s *Store) ListHistory(maker *common.Address) ([]HistoryRecord, error) {
	prefix := []byte("h:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer iter.Close()

	var records []HistoryRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec HistoryRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal history %x: %w", iter.Key(), err)
		}
		if maker != nil && rec.Order.MakerAddress != *maker {
			continue
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Order.Salt.Cmp(records[j].Order.Salt) > 0
	})
	return records, nil
}

// ============================================================================
// Tick history
// ============================================================================

// SaveTick appends a tick for pair, keyed by its timestamp.
func (s *Store) SaveTick(pair string, tk candle.Tick) error {
	data, err := json.Marshal(tk)
	if err != nil {
		return fmt.Errorf("marshal tick %s@%d: %w", pair, tk.Dt, err)
	}
	if err := s.db.Set(kTick(pair, tk.Dt), data, pebble.NoSync); err != nil {
		return fmt.Errorf("save tick %s@%d: %w", pair, tk.Dt, err)
	}
	return nil
}

// TicksBetween returns pair's ticks with from <= dt < to, ascending by time.
func (s *Store) TicksBetween(pair string, from, to int64) ([]candle.Tick, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: kTick(pair, from),
		UpperBound: kTick(pair, to),
	})
	if err != nil {
		return nil, fmt.Errorf("scan ticks %s: %w", pair, err)
	}
	defer iter.Close()

	var ticks []candle.Tick
	for iter.First(); iter.Valid(); iter.Next() {
		var tk candle.Tick
		if err := json.Unmarshal(iter.Value(), &tk); err != nil {
			return nil, fmt.Errorf("unmarshal tick %x: %w", iter.Key(), err)
		}
		ticks = append(ticks, tk)
	}
	return ticks, iter.Error()
}

// LastTickBefore returns pair's most recent tick strictly before t, if any.
func (s *Store) LastTickBefore(pair string, t int64) (*candle.Tick, bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: tickPrefix(pair),
		UpperBound: kTick(pair, t),
	})
	if err != nil {
		return nil, false, fmt.Errorf("scan ticks %s: %w", pair, err)
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, false, iter.Error()
	}
	var tk candle.Tick
	if err := json.Unmarshal(iter.Value(), &tk); err != nil {
		return nil, false, fmt.Errorf("unmarshal tick %x: %w", iter.Key(), err)
	}
	return &tk, true, nil
}
