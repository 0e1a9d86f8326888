package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/quantbit/upbit-engine/internal/exchange"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/mocks"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// GatewayTestSuite is the test suite for the order execution gateway.
type GatewayTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	exchange *mocks.MockExchange
}

// TestGateway runs the test suite.
func TestGateway(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

// SetupTest runs before each test.
func (s *GatewayTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.exchange = mocks.NewMockExchange(s.ctrl)
}

// TearDownTest runs after each test.
func (s *GatewayTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GatewayTestSuite) newGateway(mode types.OrderMode) *Gateway {
	gateway, err := NewGateway(s.exchange, Config{
		Mode:               mode,
		DefaultOrderAmount: 10000,
		MaxOrderAmount:     100000,
		FeeRate:            0.0005,
	}, logger.NewNopLogger())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = gateway.Close() })

	return gateway
}

func (s *GatewayTestSuite) TestSimulatedBuyRecordsHistory() {
	gateway := s.newGateway(types.OrderModeSimulated)

	order, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().NoError(err)

	s.Assert().Equal(types.OrderStatusSimulated, order.Status)
	s.Assert().Equal(types.OrderSideBuy, order.Side)
	// volume = (amount - fee) / price with fee = amount * feeRate.
	s.Assert().InDelta((10000-5.0)/50000, order.Volume, 1e-9)

	history, err := gateway.GetOrderHistory(0)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Assert().Equal(order.ID, history[0].ID)
}

func (s *GatewayTestSuite) TestBuyClampsAmountToMaximum() {
	gateway := s.newGateway(types.OrderModeSimulated)

	order, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 500000, "test")
	s.Require().NoError(err)
	s.Assert().InDelta(100000.0, order.Amount, 1e-9)
}

func (s *GatewayTestSuite) TestBuyRejectsInvalidParameters() {
	gateway := s.newGateway(types.OrderModeSimulated)

	_, err := gateway.Buy(context.Background(), "KRW-BTC", 0, 10000, "test")
	s.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	_, err = gateway.Buy(context.Background(), "KRW-BTC", 50000, -1, "test")
	s.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *GatewayTestSuite) TestBuyWithoutAmountUsesDefault() {
	gateway := s.newGateway(types.OrderModeSimulated)

	order, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 0, "test")
	s.Require().NoError(err)
	s.Assert().InDelta(10000.0, order.Amount, 1e-9)
	s.Assert().InDelta((10000-5.0)/50000, order.Volume, 1e-9)
}

func (s *GatewayTestSuite) TestBuyWithoutAmountAndNoDefaultRejected() {
	gateway, err := NewGateway(s.exchange, Config{
		Mode:           types.OrderModeSimulated,
		MaxOrderAmount: 100000,
	}, logger.NewNopLogger())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = gateway.Close() })

	_, err = gateway.Buy(context.Background(), "KRW-BTC", 50000, 0, "test")
	s.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *GatewayTestSuite) TestSubmitRefusesMisconfiguredMode() {
	gateway, err := NewGateway(s.exchange, Config{
		Mode:               "dry-run",
		DefaultOrderAmount: 10000,
		MaxOrderAmount:     100000,
	}, logger.NewNopLogger())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = gateway.Close() })

	s.exchange.EXPECT().
		CreateOrder(gomock.Any(), "KRW-BTC", exchange.SideBid, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(exchange.Order{ID: "ord-1", Market: "KRW-BTC", State: exchange.OrderStateWait}, nil)

	_, err = gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().Error(err)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidOrder))

	history, err := gateway.GetOrderHistory(0)
	s.Require().NoError(err)
	s.Assert().Empty(history)
}

func (s *GatewayTestSuite) TestSimulatedHoldingsFollowBuysAndSells() {
	gateway := s.newGateway(types.OrderModeSimulated)
	ctx := context.Background()

	buy, err := gateway.Buy(ctx, "KRW-BTC", 50000, 10000, "test")
	s.Require().NoError(err)

	held, err := gateway.HeldVolume(ctx, "KRW-BTC")
	s.Require().NoError(err)
	s.Assert().InDelta(buy.Volume, held, 1e-9)

	_, err = gateway.Sell(ctx, "KRW-BTC", 51000, held, "test")
	s.Require().NoError(err)

	held, err = gateway.HeldVolume(ctx, "KRW-BTC")
	s.Require().NoError(err)
	s.Assert().InDelta(0.0, held, 1e-9)
}

func (s *GatewayTestSuite) TestSimulatedCancelRewritesAllRecords() {
	gateway := s.newGateway(types.OrderModeSimulated)

	order, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().NoError(err)

	// Simulate a retry sharing the same order id.
	retry := order
	retry.CreatedAt = retry.CreatedAt.Add(time.Second)
	s.Require().NoError(gateway.history.Append(retry))

	s.Require().NoError(gateway.CancelOrder(context.Background(), order.ID))

	history, err := gateway.GetOrderHistory(0)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	for _, record := range history {
		s.Assert().Equal(types.OrderStatusCancelled, record.Status)
	}
}

func (s *GatewayTestSuite) TestSimulatedCancelUnknownOrderFails() {
	gateway := s.newGateway(types.OrderModeSimulated)

	err := gateway.CancelOrder(context.Background(), "missing")
	s.Require().Error(err)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeOrderNotFound))
}

func (s *GatewayTestSuite) TestSimulatedStatusLookup() {
	gateway := s.newGateway(types.OrderModeSimulated)

	order, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().NoError(err)

	got, err := gateway.GetOrderStatus(context.Background(), order.ID)
	s.Require().NoError(err)
	s.Assert().Equal(order.ID, got.ID)

	_, err = gateway.GetOrderStatus(context.Background(), "missing")
	s.Assert().True(errors.HasCode(err, errors.ErrCodeOrderNotFound))
}

func (s *GatewayTestSuite) TestLiveBuySubmitsAndTracks() {
	gateway := s.newGateway(types.OrderModeLive)

	s.exchange.EXPECT().
		CreateOrder(gomock.Any(), "KRW-BTC", exchange.SideBid, gomock.Any(), 50000.0, exchange.OrderTypeLimit).
		Return(exchange.Order{ID: "ord-1", Market: "KRW-BTC", State: exchange.OrderStateWait}, nil)

	order, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().NoError(err)
	s.Assert().Equal("ord-1", order.ID)
	s.Assert().Equal(types.OrderStatusSubmitted, order.Status)

	active := gateway.GetActiveOrders()
	s.Require().Len(active, 1)
	s.Assert().Equal("ord-1", active[0].ID)
}

func (s *GatewayTestSuite) TestLiveSubmissionFailureIsRecordedAndRaised() {
	gateway := s.newGateway(types.OrderModeLive)

	s.exchange.EXPECT().
		CreateOrder(gomock.Any(), "KRW-BTC", exchange.SideBid, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(exchange.Order{}, errors.New(errors.ErrCodeOrderFailed, "insufficient funds"))

	_, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().Error(err)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeOrderFailed))

	history, err := gateway.GetOrderHistory(0)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Assert().Equal(types.OrderStatusFailed, history[0].Status)
	s.Assert().Contains(history[0].Error, "insufficient funds")
	s.Assert().Empty(gateway.GetActiveOrders())
}

func (s *GatewayTestSuite) TestUpdateActiveOrdersSettlesTerminalStates() {
	gateway := s.newGateway(types.OrderModeLive)

	s.exchange.EXPECT().
		CreateOrder(gomock.Any(), "KRW-BTC", exchange.SideBid, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(exchange.Order{ID: "ord-1", Market: "KRW-BTC", State: exchange.OrderStateWait}, nil)

	_, err := gateway.Buy(context.Background(), "KRW-BTC", 50000, 10000, "test")
	s.Require().NoError(err)

	// A wait state is not terminal and leaves the order active.
	s.exchange.EXPECT().
		GetOrder(gomock.Any(), "ord-1").
		Return(exchange.Order{ID: "ord-1", Market: "KRW-BTC", State: exchange.OrderStateWait}, nil)

	s.Require().NoError(gateway.UpdateActiveOrders(context.Background()))
	s.Require().Len(gateway.GetActiveOrders(), 1)

	s.exchange.EXPECT().
		GetOrder(gomock.Any(), "ord-1").
		Return(exchange.Order{ID: "ord-1", Market: "KRW-BTC", State: exchange.OrderStateDone}, nil)

	s.Require().NoError(gateway.UpdateActiveOrders(context.Background()))
	s.Assert().Empty(gateway.GetActiveOrders())

	history, err := gateway.GetOrderHistory(0)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Assert().Equal(types.OrderStatusFilled, history[0].Status)
}

func (s *GatewayTestSuite) TestUpdateActiveOrdersIsNoOpInSimulatedMode() {
	gateway := s.newGateway(types.OrderModeSimulated)
	s.Require().NoError(gateway.UpdateActiveOrders(context.Background()))
}

func (s *GatewayTestSuite) TestLiveHeldVolumeReadsAccounts() {
	gateway := s.newGateway(types.OrderModeLive)

	s.exchange.EXPECT().GetAccounts(gomock.Any()).Return([]exchange.Account{
		{Currency: "KRW", Balance: 100000},
		{Currency: "BTC", Balance: 0.5},
	}, nil)

	held, err := gateway.HeldVolume(context.Background(), "KRW-BTC")
	s.Require().NoError(err)
	s.Assert().InDelta(0.5, held, 1e-9)
}
