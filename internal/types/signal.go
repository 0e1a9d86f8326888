package types

// SignalType is a trading decision emitted by a strategy.
type SignalType string

const (
	// SignalTypeBuy tells the execution layer to open a long position.
	SignalTypeBuy SignalType = "buy"
	// SignalTypeSell tells the execution layer to close the long position.
	SignalTypeSell SignalType = "sell"
	// SignalTypeNone means the strategy takes no action on this event.
	SignalTypeNone SignalType = "none"
)
