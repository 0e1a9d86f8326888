package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

type UpbitClientTestSuite struct {
	suite.Suite

	server  *httptest.Server
	mux     *http.ServeMux
	client  *UpbitClient
	lastReq *http.Request
}

func TestUpbitClientTestSuite(t *testing.T) {
	suite.Run(t, new(UpbitClientTestSuite))
}

func (s *UpbitClientTestSuite) SetupTest() {
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastReq = r
		s.mux.ServeHTTP(w, r)
	}))

	log, err := logger.NewLogger()
	s.Require().NoError(err)

	s.client = NewUpbitClient(UpbitConfig{
		AccessKey: "test-access",
		SecretKey: "test-secret",
		BaseURL:   s.server.URL,
	}, log)
}

func (s *UpbitClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *UpbitClientTestSuite) respond(pattern string, body string) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func (s *UpbitClientTestSuite) TestGetMarkets() {
	s.respond("/v1/market/all", `[
		{"market":"KRW-BTC","korean_name":"비트코인","english_name":"Bitcoin"},
		{"market":"KRW-ETH","korean_name":"이더리움","english_name":"Ethereum"}
	]`)

	markets, err := s.client.GetMarkets(context.Background())
	s.Require().NoError(err)
	s.Require().Len(markets, 2)
	s.Equal("KRW-BTC", markets[0].Name)
	s.Equal("Bitcoin", markets[0].EnglishName)
	s.Equal("이더리움", markets[1].KoreanName)
}

func (s *UpbitClientTestSuite) TestGetTickerConvertsFields() {
	s.respond("/v1/ticker", `[{
		"market":"KRW-BTC",
		"trade_price":50000000.0,
		"high_price":51000000.0,
		"low_price":49000000.0,
		"signed_change_rate":0.0123,
		"acc_trade_volume_24h":1234.5,
		"timestamp":1767225600000
	}]`)

	tickers, err := s.client.GetTicker(context.Background(), []string{"KRW-BTC"})
	s.Require().NoError(err)
	s.Require().Len(tickers, 1)

	ticker := tickers[0]
	s.Equal("KRW-BTC", ticker.Market)
	s.Equal(50000000.0, ticker.TradePrice)
	s.Equal(0.0123, ticker.SignedChangeRate)
	s.Equal(time.UnixMilli(1767225600000).UTC(), ticker.Timestamp)

	s.Equal("KRW-BTC", s.lastReq.URL.Query().Get("markets"))
}

func (s *UpbitClientTestSuite) TestGetTickerJoinsMarkets() {
	s.respond("/v1/ticker", `[]`)

	_, err := s.client.GetTicker(context.Background(), []string{"KRW-BTC", "KRW-ETH"})
	s.Require().NoError(err)
	s.Equal("KRW-BTC,KRW-ETH", s.lastReq.URL.Query().Get("markets"))
}

func (s *UpbitClientTestSuite) TestGetOrderbook() {
	s.respond("/v1/orderbook", `[{
		"market":"KRW-BTC",
		"timestamp":1767225600000,
		"total_ask_size":3.5,
		"total_bid_size":4.5,
		"orderbook_units":[
			{"ask_price":50100000,"bid_price":50000000,"ask_size":1.0,"bid_size":2.0}
		]
	}]`)

	snapshots, err := s.client.GetOrderbook(context.Background(), []string{"KRW-BTC"})
	s.Require().NoError(err)
	s.Require().Len(snapshots, 1)
	s.Equal(3.5, snapshots[0].TotalAskSize)
	s.Require().Len(snapshots[0].Units, 1)
	s.Equal(50100000.0, snapshots[0].Units[0].AskPrice)
	s.Equal(2.0, snapshots[0].Units[0].BidSize)
}

func (s *UpbitClientTestSuite) TestGetCandles() {
	s.respond("/v1/candles/minutes/5", `[
		{
			"market":"KRW-BTC",
			"candle_date_time_utc":"2026-01-01T00:05:00",
			"opening_price":50000000,
			"high_price":50200000,
			"low_price":49900000,
			"trade_price":50100000,
			"candle_acc_trade_volume":12.5
		},
		{
			"market":"KRW-BTC",
			"candle_date_time_utc":"2026-01-01T00:00:00",
			"opening_price":49900000,
			"high_price":50100000,
			"low_price":49800000,
			"trade_price":50000000,
			"candle_acc_trade_volume":10.0
		}
	]`)

	candles, err := s.client.GetCandles(context.Background(), "KRW-BTC", 5, 2)
	s.Require().NoError(err)
	s.Require().Len(candles, 2)

	s.Equal("KRW-BTC", candles[0].Market)
	s.Equal(time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC), candles[0].Timestamp)
	s.Equal(50000000.0, candles[0].Open)
	s.Equal(50100000.0, candles[0].Close)
	s.Equal(12.5, candles[0].Volume)

	s.Equal("KRW-BTC", s.lastReq.URL.Query().Get("market"))
	s.Equal("2", s.lastReq.URL.Query().Get("count"))
}

func (s *UpbitClientTestSuite) TestGetCandlesRejectsBadTimestamp() {
	s.respond("/v1/candles/minutes/1", `[{
		"market":"KRW-BTC",
		"candle_date_time_utc":"not-a-time",
		"trade_price":1
	}]`)

	_, err := s.client.GetCandles(context.Background(), "KRW-BTC", 1, 1)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeFetchFailed))
}

func (s *UpbitClientTestSuite) TestGetAccountsParsesStringBalances() {
	s.respond("/v1/accounts", `[
		{"currency":"KRW","balance":"1000000.5","locked":"0","avg_buy_price":"0"},
		{"currency":"BTC","balance":"0.25","locked":"0.05","avg_buy_price":"48000000"}
	]`)

	accounts, err := s.client.GetAccounts(context.Background())
	s.Require().NoError(err)
	s.Require().Len(accounts, 2)
	s.Equal(1000000.5, accounts[0].Balance)
	s.Equal("BTC", accounts[1].Currency)
	s.Equal(0.05, accounts[1].Locked)
	s.Equal(48000000.0, accounts[1].AvgBuyPrice)
}

func (s *UpbitClientTestSuite) TestCreateOrderSendsBodyAndParsesResponse() {
	var body map[string]string

	s.mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"uuid":"order-1",
			"market":"KRW-BTC",
			"side":"bid",
			"state":"wait",
			"price":"50000000",
			"volume":"0.001",
			"created_at":"2026-01-01T09:00:00+09:00"
		}`))
	})

	order, err := s.client.CreateOrder(context.Background(), "KRW-BTC", SideBid, 0.001, 50000000, OrderTypeLimit)
	s.Require().NoError(err)

	s.Equal("order-1", order.ID)
	s.Equal(SideBid, order.Side)
	s.Equal(OrderStateWait, order.State)
	s.Equal(50000000.0, order.Price)
	s.Equal(0.001, order.Volume)

	s.Equal("KRW-BTC", body["market"])
	s.Equal("bid", body["side"])
	s.Equal("limit", body["ord_type"])
	s.Equal("0.001", body["volume"])
	s.Equal("50000000", body["price"])
}

func (s *UpbitClientTestSuite) TestCreateOrderRejectionRaisesOrderError() {
	s.mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient funds"}}`))
	})

	_, err := s.client.CreateOrder(context.Background(), "KRW-BTC", SideBid, 0, 5000, OrderTypePrice)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeOrderFailed))
	s.Contains(err.Error(), "insufficient funds")
}

func (s *UpbitClientTestSuite) TestCancelOrder() {
	s.mux.HandleFunc("/v1/order", func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodDelete, r.Method)
		s.Equal("order-1", r.URL.Query().Get("uuid"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uuid":"order-1"}`))
	})

	s.Require().NoError(s.client.CancelOrder(context.Background(), "order-1"))
}

func (s *UpbitClientTestSuite) TestCancelOrderFailureRaisesCancelError() {
	s.mux.HandleFunc("/v1/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := s.client.CancelOrder(context.Background(), "missing")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeCancelFailed))
}

func (s *UpbitClientTestSuite) TestGetOrder() {
	s.respond("/v1/order", `{
		"uuid":"order-2",
		"market":"KRW-ETH",
		"side":"ask",
		"state":"done",
		"price":"3000000",
		"volume":"1.5",
		"created_at":"2026-01-02T12:00:00+09:00"
	}`)

	order, err := s.client.GetOrder(context.Background(), "order-2")
	s.Require().NoError(err)
	s.Equal("order-2", order.ID)
	s.Equal(SideAsk, order.Side)
	s.Equal(OrderStateDone, order.State)
	s.Equal(1.5, order.Volume)
	s.Equal("order-2", s.lastReq.URL.Query().Get("uuid"))
}

func (s *UpbitClientTestSuite) TestHTTPErrorRaisesFetchError() {
	s.mux.HandleFunc("/v1/ticker", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := s.client.GetTicker(context.Background(), []string{"KRW-BTC"})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeFetchFailed))
}

func (s *UpbitClientTestSuite) TestAuthTokenShape() {
	s.respond("/v1/ticker", `[]`)

	_, err := s.client.GetTicker(context.Background(), []string{"KRW-BTC"})
	s.Require().NoError(err)

	auth := s.lastReq.Header.Get("Authorization")
	s.Require().True(strings.HasPrefix(auth, "Bearer "))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Bearer "))
	s.Require().NoError(err)

	var payload map[string]string
	s.Require().NoError(json.Unmarshal(raw, &payload))
	s.Equal("test-access", payload["access_key"])
	s.NotEmpty(payload["nonce"])
	s.Equal("SHA512", payload["query_hash_alg"])
	s.Len(payload["query_hash"], 128)
}

func (s *UpbitClientTestSuite) TestAuthTokenOmitsHashWithoutQuery() {
	s.respond("/v1/accounts", `[]`)

	_, err := s.client.GetAccounts(context.Background())
	s.Require().NoError(err)

	auth := s.lastReq.Header.Get("Authorization")
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Bearer "))
	s.Require().NoError(err)

	var payload map[string]string
	s.Require().NoError(json.Unmarshal(raw, &payload))
	s.NotContains(payload, "query_hash")
}

func (s *UpbitClientTestSuite) TestDefaultEndpoints() {
	log, err := logger.NewLogger()
	s.Require().NoError(err)

	client := NewUpbitClient(UpbitConfig{}, log)
	s.Equal(DefaultBaseURL, client.config.BaseURL)
	s.Equal(DefaultWebsocketURL, client.config.WebsocketURL)
}
