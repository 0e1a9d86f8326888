package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidDateRange     ErrorCode = 103
	ErrCodeInvalidStrategy      ErrorCode = 104

	// Market data errors (200-299)
	ErrCodeFetchFailed     ErrorCode = 200
	ErrCodePersistFailed   ErrorCode = 201
	ErrCodeLoadFailed      ErrorCode = 202
	ErrCodeUnknownDataType ErrorCode = 203

	// Order errors (300-399)
	ErrCodeOrderFailed     ErrorCode = 300
	ErrCodeOrderNotFound   ErrorCode = 301
	ErrCodeCancelFailed    ErrorCode = 302
	ErrCodeHistoryFailed   ErrorCode = 303
	ErrCodeAccountNotFound ErrorCode = 304

	// Backtest errors (400-499)
	ErrCodeBacktestRunning ErrorCode = 400
	ErrCodeNoData          ErrorCode = 401
	ErrCodeNoResult        ErrorCode = 402
	ErrCodeResultIO        ErrorCode = 403

	// Subscriber errors (500-599)
	ErrCodeSubscriberPanic ErrorCode = 500
)
