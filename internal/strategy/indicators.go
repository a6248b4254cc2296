package strategy

import (
	"math"

	"crypto-trading-bot/internal/market"
)

// CalculateSMA calculates Simple Moving Average over closes.
func CalculateSMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		sum += candles[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average over closes.
func CalculateEMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	// Initial SMA as starting point
	sma := CalculateSMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// CalculateRSI calculates the Relative Strength Index.
func CalculateRSI(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0

	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates the MACD line, signal line and histogram.
// The signal line is a proper EMA over the MACD series.
func CalculateMACD(candles []market.Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	// Build the MACD series over the window tail so the signal line
	// can be a real EMA rather than an approximation.
	start := len(candles) - signalPeriod*2
	if start < slowPeriod {
		start = slowPeriod
	}
	series := make([]float64, 0, len(candles)-start+1)
	for i := start; i <= len(candles); i++ {
		window := candles[:i]
		series = append(series, CalculateEMA(window, fastPeriod)-CalculateEMA(window, slowPeriod))
	}
	if len(series) == 0 {
		return &MACDResult{}
	}

	macdLine := series[len(series)-1]
	signalLine := emaOfSeries(series, signalPeriod)

	return &MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

func emaOfSeries(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		period = len(values)
	}
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	multiplier := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = v*multiplier + ema*(1-multiplier)
	}
	return ema
}

// BollingerBandsResult holds Bollinger Bands values
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollingerBands calculates Bollinger Bands
func CalculateBollingerBands(candles []market.Candle, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if len(candles) < period {
		return &BollingerBandsResult{}
	}

	middle := CalculateSMA(candles, period)

	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerBandsResult{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}

// CalculateATR calculates Average True Range
func CalculateATR(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}

	return sum / float64(period)
}

// CalculateMomentum returns the absolute close change over period candles.
func CalculateMomentum(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	return candles[len(candles)-1].Close - candles[len(candles)-1-period].Close
}

// CalculateROC returns the rate of change as a percentage.
func CalculateROC(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	past := candles[len(candles)-1-period].Close
	if past == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - past) / past * 100
}

// CalculateAverageVolume returns the mean volume of the last period candles.
func CalculateAverageVolume(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

// IsVolumeSpike reports whether the latest volume exceeds the average
// of the preceding period by the multiplier.
func IsVolumeSpike(candles []market.Candle, period int, multiplier float64) bool {
	if len(candles) < period+1 {
		return false
	}
	avg := CalculateAverageVolume(candles[:len(candles)-1], period)
	if avg == 0 {
		return false
	}
	return candles[len(candles)-1].Volume > avg*multiplier
}
