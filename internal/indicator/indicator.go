// Package indicator provides the technical indicators computed over price
// windows collected by the strategies.
package indicator

// SMA returns the simple moving average of the last period values. It
// returns 0 when fewer than period values are available, which callers
// treat as "not ready yet".
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}

	return sum / float64(period)
}

// RSI returns the Relative Strength Index over the last period price
// changes, using simple averages of gains and losses. It returns 0 when
// fewer than period+1 values are available. A perfectly flat window yields
// the neutral value 50; a window with gains and no losses saturates near
// 100.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	window := values[len(values)-period-1:]

	var gains, losses float64

	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgGain == 0 && avgLoss == 0 {
		return 50
	}

	rs := 100.0
	if avgLoss > 0 {
		rs = avgGain / avgLoss
	}

	return 100 - 100/(1+rs)
}
