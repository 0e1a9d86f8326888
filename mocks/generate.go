package mocks

//go:generate mockgen -destination=./mock_exchange.go -package=mocks github.com/quantbit/upbit-engine/internal/exchange Exchange
