// Package market implements the market data store: a cached, persisted,
// fan-out layer between the exchange and everything that consumes market
// data (strategies, the execution gateway, the backtester).
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/exchange"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

const (
	// fetchChunkSize is the maximum number of markets requested in a
	// single exchange call.
	fetchChunkSize = 100
	// fetchChunkDelay is the pause between consecutive chunk requests.
	fetchChunkDelay = 200 * time.Millisecond

	// SubscribeAll subscribes to updates for every market of a data type.
	SubscribeAll = "all"

	dateLayout = "2006-01-02"
)

var partitionDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\.json$`)

// Config holds the store's tunables.
type Config struct {
	// DataDir is the root directory for persisted partitions.
	DataDir string `yaml:"dataDir" validate:"required"`
	// KeepDays is the retention window for persisted partitions.
	KeepDays int `yaml:"keepDays" validate:"gte=1"`
	// CollectInterval is the period of the background collection loop.
	CollectInterval time.Duration `yaml:"collectInterval" validate:"gt=0"`
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

type subscriberKey struct {
	dataType types.DataType
	key      string
}

type subscriber struct {
	id       int
	callback func(types.Event)
}

// Subscription is the handle returned by Subscribe. Unsubscribe through it.
type Subscription struct {
	store *Store
	key   subscriberKey
	id    int
}

// Unsubscribe removes the subscription from the store. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.store.unsubscribe(s.key, s.id)
}

// Store caches the latest market data per market, persists it into daily
// JSON partitions, and fans updates out to subscribers in registration
// order. A panicking subscriber never affects the others.
type Store struct {
	exchange exchange.Exchange
	log      *logger.Logger
	clock    Clock
	config   Config

	mu         sync.Mutex
	tickers    map[string]cacheEntry[types.Ticker]
	orderbooks map[string]cacheEntry[types.OrderbookSnapshot]
	candles    map[string]cacheEntry[[]types.Candle]

	subscribers map[subscriberKey][]subscriber
	nextSubID   int

	collectStop chan struct{}
	cleanupStop chan struct{}
}

// NewStore creates a Store and its on-disk partition directories.
func NewStore(ex exchange.Exchange, config Config, clock Clock, log *logger.Logger) (*Store, error) {
	if config.KeepDays <= 0 {
		config.KeepDays = 30
	}

	for _, dataType := range []types.DataType{types.DataTypeTicker, types.DataTypeOrderbook, types.DataTypeCandle} {
		dir := filepath.Join(config.DataDir, string(dataType))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to create data directory %s", dir)
		}
	}

	return &Store{
		exchange:    ex,
		log:         log,
		clock:       clock,
		config:      config,
		tickers:     make(map[string]cacheEntry[types.Ticker]),
		orderbooks:  make(map[string]cacheEntry[types.OrderbookSnapshot]),
		candles:     make(map[string]cacheEntry[[]types.Candle]),
		subscribers: make(map[subscriberKey][]subscriber),
	}, nil
}

// GetTicker fetches the latest ticker for a market, caches it, and notifies
// ticker subscribers. On fetch failure the last cached value is returned
// instead, with its age logged.
func (s *Store) GetTicker(ctx context.Context, market string) (types.Ticker, error) {
	tickers, err := s.exchange.GetTicker(ctx, []string{market})
	if err != nil || len(tickers) == 0 {
		s.mu.Lock()
		entry, ok := s.tickers[market]
		s.mu.Unlock()

		if ok {
			s.log.Warn("ticker fetch failed, serving cached value",
				zap.String("market", market),
				zap.Duration("age", s.clock.Now().Sub(entry.fetchedAt)),
				zap.Error(err))

			return entry.value, nil
		}
		if err == nil {
			err = errors.Newf(errors.ErrCodeFetchFailed, "empty ticker response for %s", market)
		}

		return types.Ticker{}, err
	}

	s.storeTicker(tickers[0])

	return tickers[0], nil
}

// GetTickers fetches tickers for many markets, in chunks of at most 100
// markets with a short delay between chunks. Each fetched ticker is cached
// and fanned out individually. A failing chunk is logged and skipped.
func (s *Store) GetTickers(ctx context.Context, markets []string) ([]types.Ticker, error) {
	var out []types.Ticker

	for start := 0; start < len(markets); start += fetchChunkSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-s.clock.After(fetchChunkDelay):
			}
		}

		end := start + fetchChunkSize
		if end > len(markets) {
			end = len(markets)
		}

		tickers, err := s.exchange.GetTicker(ctx, markets[start:end])
		if err != nil {
			s.log.Warn("ticker chunk fetch failed",
				zap.Int("offset", start),
				zap.Int("size", end-start),
				zap.Error(err))

			continue
		}

		for _, ticker := range tickers {
			s.storeTicker(ticker)
		}
		out = append(out, tickers...)
	}

	if len(out) == 0 && len(markets) > 0 {
		return nil, errors.Newf(errors.ErrCodeFetchFailed, "all ticker chunks failed for %d markets", len(markets))
	}

	return out, nil
}

// PublishTicker injects an externally received ticker, typically from the
// realtime websocket stream, into the cache and the fan-out path.
func (s *Store) PublishTicker(ticker types.Ticker) {
	s.storeTicker(ticker)
}

func (s *Store) storeTicker(ticker types.Ticker) {
	s.mu.Lock()
	s.tickers[ticker.Market] = cacheEntry[types.Ticker]{value: ticker, fetchedAt: s.clock.Now()}
	s.mu.Unlock()

	s.notify(types.DataTypeTicker, ticker.Market, types.NewTickerEvent(ticker))
}

// GetOrderbook fetches the latest orderbook snapshot for a market, caches
// it, and notifies orderbook subscribers. Falls back to the cache on fetch
// failure.
func (s *Store) GetOrderbook(ctx context.Context, market string) (types.OrderbookSnapshot, error) {
	snapshots, err := s.exchange.GetOrderbook(ctx, []string{market})
	if err != nil || len(snapshots) == 0 {
		s.mu.Lock()
		entry, ok := s.orderbooks[market]
		s.mu.Unlock()

		if ok {
			s.log.Warn("orderbook fetch failed, serving cached value",
				zap.String("market", market),
				zap.Duration("age", s.clock.Now().Sub(entry.fetchedAt)),
				zap.Error(err))

			return entry.value, nil
		}
		if err == nil {
			err = errors.Newf(errors.ErrCodeFetchFailed, "empty orderbook response for %s", market)
		}

		return types.OrderbookSnapshot{}, err
	}

	snapshot := snapshots[0]
	s.mu.Lock()
	s.orderbooks[market] = cacheEntry[types.OrderbookSnapshot]{value: snapshot, fetchedAt: s.clock.Now()}
	s.mu.Unlock()

	s.notify(types.DataTypeOrderbook, market, types.NewOrderbookEvent(snapshot))

	return snapshot, nil
}

// GetCandles fetches up to count minute candles for a market at the given
// unit, caches them, and notifies candle subscribers with one event per
// candle in chronological order. Falls back to the cache on fetch failure.
func (s *Store) GetCandles(ctx context.Context, market string, unit int, count int) ([]types.Candle, error) {
	key := candleKey(market, unit)

	candles, err := s.exchange.GetCandles(ctx, market, unit, count)
	if err != nil || len(candles) == 0 {
		s.mu.Lock()
		entry, ok := s.candles[key]
		s.mu.Unlock()

		if ok {
			s.log.Warn("candle fetch failed, serving cached value",
				zap.String("market", market),
				zap.Int("unit", unit),
				zap.Duration("age", s.clock.Now().Sub(entry.fetchedAt)),
				zap.Error(err))

			return entry.value, nil
		}
		if err == nil {
			err = errors.Newf(errors.ErrCodeFetchFailed, "empty candle response for %s", market)
		}

		return nil, err
	}

	s.mu.Lock()
	s.candles[key] = cacheEntry[[]types.Candle]{value: candles, fetchedAt: s.clock.Now()}
	s.mu.Unlock()

	// Exchange candles arrive newest first. Deliver oldest first so
	// indicator windows see them in time order.
	for i := len(candles) - 1; i >= 0; i-- {
		s.notify(types.DataTypeCandle, key, types.NewCandleEvent(candles[i]))
	}

	return candles, nil
}

// Subscribe registers a callback for updates of a data type and market key.
// Pass SubscribeAll as the market to receive updates for every market of
// that type. For candles the key is "<market>-<unit>". Callbacks run in
// registration order.
func (s *Store) Subscribe(dataType types.DataType, market string, callback func(types.Event)) *Subscription {
	key := subscriberKey{dataType: dataType, key: market}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subscribers[key] = append(s.subscribers[key], subscriber{id: id, callback: callback})

	return &Subscription{store: s, key: key, id: id}
}

// SubscribeCandles registers a callback for candle updates of a market at
// the given minute unit.
func (s *Store) SubscribeCandles(market string, unit int, callback func(types.Event)) *Subscription {
	return s.Subscribe(types.DataTypeCandle, candleKey(market, unit), callback)
}

func (s *Store) unsubscribe(key subscriberKey, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[key]
	for i, sub := range subs {
		if sub.id == id {
			s.subscribers[key] = append(subs[:i:i], subs[i+1:]...)

			return
		}
	}
}

// notify fans an event out to the subscribers of the exact key and the
// wildcard key, in registration order. A panic in one callback is
// recovered and logged without disturbing the rest.
func (s *Store) notify(dataType types.DataType, key string, event types.Event) {
	s.mu.Lock()
	exact := append([]subscriber(nil), s.subscribers[subscriberKey{dataType: dataType, key: key}]...)
	wildcard := append([]subscriber(nil), s.subscribers[subscriberKey{dataType: dataType, key: SubscribeAll}]...)
	s.mu.Unlock()

	for _, sub := range append(exact, wildcard...) {
		s.dispatch(sub, dataType, key, event)
	}
}

func (s *Store) dispatch(sub subscriber, dataType types.DataType, key string, event types.Event) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf(errors.ErrCodeSubscriberPanic, "subscriber %d panicked: %v", sub.id, r)
			s.log.Error("subscriber panicked",
				zap.String("dataType", string(dataType)),
				zap.String("key", key),
				zap.Int("subscriber", sub.id),
				zap.Error(err))
		}
	}()

	sub.callback(event)
}

// Persist appends records to the daily partition for a data type and
// market, keyed by the store clock's current date. The value may be a
// single record or a slice; slices are merged element-wise.
func (s *Store) Persist(dataType types.DataType, market string, unit int, value any) error {
	date := s.clock.Now().Format(dateLayout)
	path := s.partitionPath(dataType, market, unit, date)

	existing, err := readPartition(path)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to encode %s records for %s", dataType, market)
	}

	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to split %s records for %s", dataType, market)
		}
		existing = append(existing, items...)
	} else {
		existing = append(existing, json.RawMessage(raw))
	}

	encoded, err := json.Marshal(existing)
	if err != nil {
		return errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to encode partition %s", path)
	}

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to write partition %s", path)
	}

	return nil
}

// Load reads the partition for a data type, market and date into out,
// which must be a pointer to a slice. A missing partition leaves out
// untouched and returns nil.
func (s *Store) Load(dataType types.DataType, market string, unit int, date string, out any) error {
	path := s.partitionPath(dataType, market, unit, date)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrapf(errors.ErrCodeLoadFailed, err, "failed to read partition %s", path)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(errors.ErrCodeLoadFailed, err, "failed to decode partition %s", path)
	}

	return nil
}

// LoadCandles reads the candle partition for a market, unit and date.
func (s *Store) LoadCandles(market string, unit int, date string) ([]types.Candle, error) {
	var candles []types.Candle
	if err := s.Load(types.DataTypeCandle, market, unit, date, &candles); err != nil {
		return nil, err
	}

	return candles, nil
}

// StartCollection begins the background loops: a ticker-collection loop at
// the configured interval and a retention cleanup that first fires at the
// next local midnight and then every 24 hours. Calling it while a
// collection is already running restarts it.
func (s *Store) StartCollection(ctx context.Context, markets []string) {
	s.StopCollection()

	s.mu.Lock()
	collectStop := make(chan struct{})
	cleanupStop := make(chan struct{})
	s.collectStop = collectStop
	s.cleanupStop = cleanupStop
	s.mu.Unlock()

	s.log.Info("starting data collection",
		zap.Int("markets", len(markets)),
		zap.Duration("interval", s.config.CollectInterval))

	go s.collectLoop(ctx, markets, collectStop)
	go s.cleanupLoop(ctx, cleanupStop)
}

// StopCollection stops the background loops. Safe to call when nothing is
// running.
func (s *Store) StopCollection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collectStop != nil {
		close(s.collectStop)
		s.collectStop = nil
	}
	if s.cleanupStop != nil {
		close(s.cleanupStop)
		s.cleanupStop = nil
	}
}

func (s *Store) collectLoop(ctx context.Context, markets []string, stop <-chan struct{}) {
	ticker := s.clock.NewTicker(s.config.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C():
			s.collectOnce(ctx, markets)
		}
	}
}

func (s *Store) collectOnce(ctx context.Context, markets []string) {
	tickers, err := s.GetTickers(ctx, markets)
	if err != nil {
		s.log.Warn("collection cycle failed", zap.Error(err))

		return
	}

	for _, ticker := range tickers {
		if err := s.Persist(types.DataTypeTicker, ticker.Market, 0, ticker); err != nil {
			s.log.Warn("failed to persist ticker",
				zap.String("market", ticker.Market),
				zap.Error(err))
		}
	}
}

func (s *Store) cleanupLoop(ctx context.Context, stop <-chan struct{}) {
	now := s.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)

	select {
	case <-ctx.Done():
		return
	case <-stop:
		return
	case <-s.clock.After(midnight.Sub(now)):
		s.CleanupOldData()
	}

	ticker := s.clock.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C():
			s.CleanupOldData()
		}
	}
}

// CleanupOldData removes persisted partitions older than the retention
// window.
func (s *Store) CleanupOldData() {
	cutoff := s.clock.Now().AddDate(0, 0, -s.config.KeepDays).Format(dateLayout)

	for _, dataType := range []types.DataType{types.DataTypeTicker, types.DataTypeOrderbook, types.DataTypeCandle} {
		dir := filepath.Join(s.config.DataDir, string(dataType))

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			match := partitionDatePattern.FindStringSubmatch(entry.Name())
			if match == nil {
				continue
			}

			if match[1] < cutoff {
				path := filepath.Join(dir, entry.Name())
				if err := os.Remove(path); err != nil {
					s.log.Warn("failed to remove expired partition",
						zap.String("path", path),
						zap.Error(err))

					continue
				}

				s.log.Info("removed expired partition", zap.String("path", path))
			}
		}
	}
}

func (s *Store) partitionPath(dataType types.DataType, market string, unit int, date string) string {
	name := market
	if unit > 0 {
		name = fmt.Sprintf("%s-%d", market, unit)
	}

	return filepath.Join(s.config.DataDir, string(dataType), fmt.Sprintf("%s-%s.json", name, date))
}

func candleKey(market string, unit int) string {
	return fmt.Sprintf("%s-%d", market, unit)
}

func readPartition(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to read partition %s", path)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrapf(errors.ErrCodePersistFailed, err, "failed to decode partition %s", path)
	}

	return items, nil
}
