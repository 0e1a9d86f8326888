package exchange

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

const (
	DefaultBaseURL      = "https://api.upbit.com"
	DefaultWebsocketURL = "wss://api.upbit.com/websocket/v1"

	candleTimeLayout = "2006-01-02T15:04:05"
)

// UpbitConfig contains the credentials and endpoints of the Upbit client.
// Credentials may be empty for public endpoints only.
type UpbitConfig struct {
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	BaseURL      string `yaml:"base_url"`
	WebsocketURL string `yaml:"websocket_url"`
}

// UpbitClient implements Exchange against the Upbit REST API.
type UpbitClient struct {
	config UpbitConfig
	client *resty.Client
	log    *logger.Logger
}

// NewUpbitClient creates an Upbit REST client. Empty URL fields fall back to
// the production endpoints.
func NewUpbitClient(config UpbitConfig, log *logger.Logger) *UpbitClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if config.WebsocketURL == "" {
		config.WebsocketURL = DefaultWebsocketURL
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &UpbitClient{
		config: config,
		client: client,
		log:    log,
	}
}

// authToken builds the Authorization header value for a request. When query
// parameters are present their hash is embedded in the payload.
func (u *UpbitClient) authToken(query url.Values) string {
	payload := map[string]string{
		"access_key": u.config.AccessKey,
		"nonce":      uuid.New().String(),
	}

	if len(query) > 0 {
		hash := sha512.Sum512([]byte(query.Encode()))
		payload["query_hash"] = hex.EncodeToString(hash[:])
		payload["query_hash_alg"] = "SHA512"
	}

	raw, _ := json.Marshal(payload)

	return "Bearer " + base64.StdEncoding.EncodeToString(raw)
}

func (u *UpbitClient) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req := u.client.R().
		SetContext(ctx).
		SetHeader("Authorization", u.authToken(query)).
		SetResult(out)

	for key, values := range query {
		req.SetQueryParam(key, values[0])
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeFetchFailed, err, "GET %s failed", endpoint)
	}

	if resp.IsError() {
		return errors.Newf(errors.ErrCodeFetchFailed, "GET %s returned status %d: %s", endpoint, resp.StatusCode(), resp.String())
	}

	return nil
}

// GetMarkets implements Exchange.
func (u *UpbitClient) GetMarkets(ctx context.Context) ([]Market, error) {
	var raw []struct {
		Market      string `json:"market"`
		KoreanName  string `json:"korean_name"`
		EnglishName string `json:"english_name"`
	}

	if err := u.get(ctx, "/v1/market/all", nil, &raw); err != nil {
		return nil, err
	}

	markets := make([]Market, 0, len(raw))
	for _, m := range raw {
		markets = append(markets, Market{
			Name:        m.Market,
			KoreanName:  m.KoreanName,
			EnglishName: m.EnglishName,
		})
	}

	return markets, nil
}

type upbitTicker struct {
	Market            string  `json:"market"`
	TradePrice        float64 `json:"trade_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	SignedChangeRate  float64 `json:"signed_change_rate"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	TimestampMs       int64   `json:"timestamp"`
}

func (t upbitTicker) toTicker() types.Ticker {
	return types.Ticker{
		Market:            t.Market,
		TradePrice:        t.TradePrice,
		HighPrice:         t.HighPrice,
		LowPrice:          t.LowPrice,
		SignedChangeRate:  t.SignedChangeRate,
		AccTradeVolume24h: t.AccTradeVolume24h,
		Timestamp:         time.UnixMilli(t.TimestampMs).UTC(),
	}
}

// GetTicker implements Exchange.
func (u *UpbitClient) GetTicker(ctx context.Context, markets []string) ([]types.Ticker, error) {
	query := url.Values{}
	query.Set("markets", strings.Join(markets, ","))

	var raw []upbitTicker
	if err := u.get(ctx, "/v1/ticker", query, &raw); err != nil {
		return nil, err
	}

	tickers := make([]types.Ticker, 0, len(raw))
	for _, t := range raw {
		tickers = append(tickers, t.toTicker())
	}

	return tickers, nil
}

// GetOrderbook implements Exchange.
func (u *UpbitClient) GetOrderbook(ctx context.Context, markets []string) ([]types.OrderbookSnapshot, error) {
	query := url.Values{}
	query.Set("markets", strings.Join(markets, ","))

	var raw []struct {
		Market       string  `json:"market"`
		TimestampMs  int64   `json:"timestamp"`
		TotalAskSize float64 `json:"total_ask_size"`
		TotalBidSize float64 `json:"total_bid_size"`
		Units        []struct {
			AskPrice float64 `json:"ask_price"`
			BidPrice float64 `json:"bid_price"`
			AskSize  float64 `json:"ask_size"`
			BidSize  float64 `json:"bid_size"`
		} `json:"orderbook_units"`
	}

	if err := u.get(ctx, "/v1/orderbook", query, &raw); err != nil {
		return nil, err
	}

	snapshots := make([]types.OrderbookSnapshot, 0, len(raw))

	for _, ob := range raw {
		snapshot := types.OrderbookSnapshot{
			Market:       ob.Market,
			Timestamp:    time.UnixMilli(ob.TimestampMs).UTC(),
			TotalAskSize: ob.TotalAskSize,
			TotalBidSize: ob.TotalBidSize,
			Units:        make([]types.OrderbookUnit, 0, len(ob.Units)),
		}
		for _, unit := range ob.Units {
			snapshot.Units = append(snapshot.Units, types.OrderbookUnit{
				AskPrice: unit.AskPrice,
				BidPrice: unit.BidPrice,
				AskSize:  unit.AskSize,
				BidSize:  unit.BidSize,
			})
		}

		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}

type upbitCandle struct {
	Market             string  `json:"market"`
	CandleDateTimeUTC  string  `json:"candle_date_time_utc"`
	OpeningPrice       float64 `json:"opening_price"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
	TradePrice         float64 `json:"trade_price"`
	CandleAccTradeVolu float64 `json:"candle_acc_trade_volume"`
}

func (c upbitCandle) toCandle() (types.Candle, error) {
	timestamp, err := time.Parse(candleTimeLayout, c.CandleDateTimeUTC)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeFetchFailed, err, "invalid candle timestamp %q", c.CandleDateTimeUTC)
	}

	return types.Candle{
		Market:    c.Market,
		Timestamp: timestamp.UTC(),
		Open:      c.OpeningPrice,
		High:      c.HighPrice,
		Low:       c.LowPrice,
		Close:     c.TradePrice,
		Volume:    c.CandleAccTradeVolu,
	}, nil
}

// GetCandles implements Exchange.
func (u *UpbitClient) GetCandles(ctx context.Context, market string, unit int, count int) ([]types.Candle, error) {
	query := url.Values{}
	query.Set("market", market)
	query.Set("count", strconv.Itoa(count))

	var raw []upbitCandle
	if err := u.get(ctx, fmt.Sprintf("/v1/candles/minutes/%d", unit), query, &raw); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(raw))

	for _, c := range raw {
		candle, err := c.toCandle()
		if err != nil {
			return nil, err
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// GetAccounts implements Exchange.
func (u *UpbitClient) GetAccounts(ctx context.Context) ([]Account, error) {
	var raw []struct {
		Currency    string `json:"currency"`
		Balance     string `json:"balance"`
		Locked      string `json:"locked"`
		AvgBuyPrice string `json:"avg_buy_price"`
	}

	if err := u.get(ctx, "/v1/accounts", nil, &raw); err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(raw))

	for _, a := range raw {
		balance, _ := strconv.ParseFloat(a.Balance, 64)
		locked, _ := strconv.ParseFloat(a.Locked, 64)
		avgBuyPrice, _ := strconv.ParseFloat(a.AvgBuyPrice, 64)

		accounts = append(accounts, Account{
			Currency:    a.Currency,
			Balance:     balance,
			Locked:      locked,
			AvgBuyPrice: avgBuyPrice,
		})
	}

	return accounts, nil
}

type upbitOrder struct {
	UUID      string     `json:"uuid"`
	Market    string     `json:"market"`
	Side      Side       `json:"side"`
	State     OrderState `json:"state"`
	Price     string     `json:"price"`
	Volume    string     `json:"volume"`
	CreatedAt string     `json:"created_at"`
}

func (o upbitOrder) toOrder() Order {
	price, _ := strconv.ParseFloat(o.Price, 64)
	volume, _ := strconv.ParseFloat(o.Volume, 64)
	createdAt, _ := time.Parse(time.RFC3339, o.CreatedAt)

	return Order{
		ID:        o.UUID,
		Market:    o.Market,
		Side:      o.Side,
		State:     o.State,
		Price:     price,
		Volume:    volume,
		CreatedAt: createdAt,
	}
}

// CreateOrder implements Exchange.
func (u *UpbitClient) CreateOrder(ctx context.Context, market string, side Side, volume float64, price float64, orderType OrderType) (Order, error) {
	query := url.Values{}
	query.Set("market", market)
	query.Set("side", string(side))
	query.Set("ord_type", string(orderType))

	if volume > 0 {
		query.Set("volume", strconv.FormatFloat(volume, 'f', -1, 64))
	}

	if price > 0 {
		query.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}

	body := make(map[string]string, len(query))
	for key := range query {
		body[key] = query.Get(key)
	}

	var raw upbitOrder

	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Authorization", u.authToken(query)).
		SetBody(body).
		SetResult(&raw).
		Post("/v1/orders")
	if err != nil {
		return Order{}, errors.Wrap(errors.ErrCodeOrderFailed, "order submission failed", err)
	}

	if resp.IsError() {
		return Order{}, errors.Newf(errors.ErrCodeOrderFailed, "order rejected with status %d: %s", resp.StatusCode(), resp.String())
	}

	return raw.toOrder(), nil
}

// CancelOrder implements Exchange.
func (u *UpbitClient) CancelOrder(ctx context.Context, id string) error {
	query := url.Values{}
	query.Set("uuid", id)

	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Authorization", u.authToken(query)).
		SetQueryParam("uuid", id).
		Delete("/v1/order")
	if err != nil {
		return errors.Wrapf(errors.ErrCodeCancelFailed, err, "cancel of order %s failed", id)
	}

	if resp.IsError() {
		return errors.Newf(errors.ErrCodeCancelFailed, "cancel of order %s returned status %d", id, resp.StatusCode())
	}

	return nil
}

// GetOrder implements Exchange.
func (u *UpbitClient) GetOrder(ctx context.Context, id string) (Order, error) {
	query := url.Values{}
	query.Set("uuid", id)

	var raw upbitOrder
	if err := u.get(ctx, "/v1/order", query, &raw); err != nil {
		return Order{}, err
	}

	return raw.toOrder(), nil
}
