package exchange

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

const (
	pingInterval         = 30 * time.Second
	maxReconnectAttempts = 5
)

// StreamHandler receives a raw websocket frame. Handlers registered for a
// stream type ("ticker", "trade", "orderbook") are invoked for every frame
// of that type.
type StreamHandler func(frame []byte)

// StreamClient maintains a websocket subscription to the Upbit realtime feed
// and fans incoming frames out to registered handlers. Reconnects with
// exponential backoff when the connection drops.
type StreamClient struct {
	url  string
	log  *logger.Logger
	dial func(url string) (*websocket.Conn, error)

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]StreamHandler
	markets  []string
	types    []string
	cancel   context.CancelFunc
}

// NewStreamClient creates a streaming client for the given websocket URL.
func NewStreamClient(url string, log *logger.Logger) *StreamClient {
	return &StreamClient{
		url: url,
		log: log,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)

			return conn, err
		},
		handlers: make(map[string][]StreamHandler),
	}
}

// On registers a handler for a stream type. Must be called before Connect.
func (s *StreamClient) On(streamType string, handler StreamHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[streamType] = append(s.handlers[streamType], handler)
}

// Connect opens the websocket, subscribes to the given markets and stream
// types, and starts the read loop. The loop stops when ctx is cancelled or
// Disconnect is called.
func (s *StreamClient) Connect(ctx context.Context, markets []string, streamTypes []string) error {
	s.mu.Lock()
	s.markets = markets
	s.types = streamTypes
	s.mu.Unlock()

	conn, err := s.subscribe()
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	go s.readLoop(loopCtx)
	go s.pingLoop(loopCtx)

	return nil
}

func (s *StreamClient) subscribe() (*websocket.Conn, error) {
	conn, err := s.dial(s.url)
	if err != nil {
		return nil, err
	}

	request := []map[string]any{
		{"ticket": uuid.New().String()},
	}
	for _, streamType := range s.types {
		request = append(request, map[string]any{
			"type":  streamType,
			"codes": s.markets,
		})
	}

	if err := conn.WriteJSON(request); err != nil {
		conn.Close()

		return nil, err
	}

	return conn, nil
}

func (s *StreamClient) readLoop(ctx context.Context) {
	attempts := 0

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			attempts++
			if attempts > maxReconnectAttempts {
				s.log.Error("websocket reconnect attempts exhausted",
					zap.Int("attempts", attempts-1),
				)

				return
			}

			delay := time.Duration(math.Pow(2, float64(attempts))) * time.Second
			s.log.Warn("websocket connection lost, reconnecting",
				zap.Int("attempt", attempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, dialErr := s.subscribe()
			if dialErr != nil {
				s.log.Error("websocket reconnect failed", zap.Error(dialErr))

				continue
			}

			s.mu.Lock()
			s.conn = next
			s.mu.Unlock()
			attempts = 0

			continue
		}

		attempts = 0
		s.dispatch(frame)
	}
}

func (s *StreamClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()

			if conn != nil {
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					s.log.Warn("websocket ping failed", zap.Error(err))
				}
			}
		}
	}
}

func (s *StreamClient) dispatch(frame []byte) {
	if string(frame) == "pong" {
		return
	}

	var header struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(frame, &header); err != nil {
		s.log.Warn("unparsable websocket frame", zap.Error(err))

		return
	}

	s.mu.Lock()
	handlers := append([]StreamHandler(nil), s.handlers[header.Type]...)
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(frame)
	}
}

// ParseTickerFrame decodes a realtime ticker frame. The stream names the
// market "code" instead of "market" and carries millisecond timestamps.
func ParseTickerFrame(frame []byte) (types.Ticker, error) {
	var raw struct {
		Code              string  `json:"code"`
		TradePrice        float64 `json:"trade_price"`
		HighPrice         float64 `json:"high_price"`
		LowPrice          float64 `json:"low_price"`
		SignedChangeRate  float64 `json:"signed_change_rate"`
		AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
		TimestampMs       int64   `json:"timestamp"`
	}

	if err := json.Unmarshal(frame, &raw); err != nil {
		return types.Ticker{}, errors.Wrap(errors.ErrCodeFetchFailed, "invalid ticker frame", err)
	}

	return types.Ticker{
		Market:            raw.Code,
		TradePrice:        raw.TradePrice,
		HighPrice:         raw.HighPrice,
		LowPrice:          raw.LowPrice,
		SignedChangeRate:  raw.SignedChangeRate,
		AccTradeVolume24h: raw.AccTradeVolume24h,
		Timestamp:         time.UnixMilli(raw.TimestampMs).UTC(),
	}, nil
}

// Disconnect stops the read loop and closes the connection. Safe to call
// when not connected.
func (s *StreamClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
