// Package indicator computes the fixed technical-indicator set from a
// candle series. All values are recomputed from candles on every call;
// nothing here is stored. RSI and ATR use Wilder's smoothing, EMA and
// MACD use recursive exponential smoothing seeded at the first sample.
package indicator

import (
	"math"

	"CoinSight/internal/domain/models"
	"CoinSight/internal/domain/repository"
)

// minCandles is the floor below which no indicator set is defined.
const minCandles = 30

// Compute derives an IndicatorSet from an ascending candle series, or
// nil when the series is too short. tf scales the momentum lookbacks
// to calendar windows.
func Compute(candles []models.Candle, tf repository.Timeframe) *models.IndicatorSet {
	if len(candles) < minCandles {
		return nil
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	last := closes[len(closes)-1]

	ema20 := emaSeries(closes, 20)
	ema50 := emaSeries(closes, 50)
	rsi := rsiSeries(closes, 14)
	atrVal := atrWilder(candles, 14)
	macdLine, signalLine := macdSeries(closes, 12, 26, 9)
	bbUpper, bbMiddle, bbLower := bollinger(closes, 20, 2)
	volSMA := sma(volumes, 20)

	set := &models.IndicatorSet{
		RSI:           lastOf(rsi),
		MACD:          lastOf(macdLine),
		MACDSignal:    lastOf(signalLine),
		EMA20:         lastOf(ema20),
		EMA50:         lastOf(ema50),
		ATR:           atrVal,
		BBUpper:       bbUpper,
		BBMiddle:      bbMiddle,
		BBLower:       bbLower,
		VolumeSMA:     volSMA,
		EMA20Trend:    trendLabel(ema20),
		EMA50Trend:    trendLabel(ema50),
		RSIDivergence: divergence(closes, rsi),
	}
	set.MACDHistogram = set.MACD - set.MACDSignal

	set.VolumeRatio = 1
	if volSMA > 0 {
		set.VolumeRatio = volumes[len(volumes)-1] / volSMA
	}
	if set.EMA20 != 0 {
		set.PriceVsEMA20 = (last - set.EMA20) / set.EMA20 * 100
	}
	if set.EMA50 != 0 {
		set.PriceVsEMA50 = (last - set.EMA50) / set.EMA50 * 100
	}
	set.BBPosition = 0.5
	if bbUpper != bbLower {
		set.BBPosition = (last - bbLower) / (bbUpper - bbLower)
	}
	if last != 0 {
		set.ATRPercent = atrVal / last * 100
	}

	perDay := 1
	if h := tf.Duration().Hours(); h > 0 && h < 24 {
		perDay = int(24 / h)
	}
	set.Momentum24h = momentum(closes, perDay)
	set.Momentum7d = momentum(closes, 7*perDay)

	return set
}

// emaSeries returns the recursive EMA over values, one output per
// input, seeded at the first sample.
func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// rsiSeries returns Wilder's RSI over closes; one output per close
// beyond the initial period.
func rsiSeries(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	var gains, losses float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// atrWilder returns the latest ATR over true ranges.
func atrWilder(candles []models.Candle, period int) float64 {
	if len(candles) <= period {
		return 0
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l, pc := candles[i].High, candles[i].Low, candles[i-1].Close
		tr := h - l
		if d := math.Abs(h - pc); d > tr {
			tr = d
		}
		if d := math.Abs(l - pc); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}
	var sum float64
	for _, tr := range trs[:period] {
		sum += tr
	}
	atr := sum / float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

// macdSeries returns the MACD line and its signal line.
func macdSeries(closes []float64, fast, slow, signal int) ([]float64, []float64) {
	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	return macd, emaSeries(macd, signal)
}

// bollinger returns the 2-sigma band over the trailing window.
func bollinger(closes []float64, period int, width float64) (upper, middle, lower float64) {
	window := closes
	if len(window) > period {
		window = window[len(window)-period:]
	}
	middle = sma(window, len(window))
	var variance float64
	for _, v := range window {
		d := v - middle
		variance += d * d
	}
	variance /= float64(len(window))
	dev := width * math.Sqrt(variance)
	return middle + dev, middle, middle - dev
}

// sma averages the trailing period of values.
func sma(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	window := values
	if len(window) > period {
		window = window[len(window)-period:]
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// trendLabel classifies the percent change across the last 5 samples
// of a series: beyond +-0.5% is directional, inside is neutral.
func trendLabel(series []float64) string {
	n := len(series)
	if n < 5 {
		return models.TrendNeutral
	}
	first, last := series[n-5], series[n-1]
	if first == 0 {
		return models.TrendNeutral
	}
	change := (last - first) / first * 100
	switch {
	case change > 0.5:
		return models.TrendUp
	case change < -0.5:
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

// momentum is the percent change between the latest close and the
// close n periods earlier, 0 when the series is too short.
func momentum(closes []float64, n int) float64 {
	if n <= 0 || len(closes) <= n {
		return 0
	}
	prev := closes[len(closes)-1-n]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev * 100
}

// divergence checks the last 14 samples for price/RSI disagreement:
// price falling more than 2% while RSI gains over 5 points is bullish,
// the mirror case is bearish.
func divergence(closes, rsi []float64) string {
	const lookback = 14
	if len(closes) <= lookback || len(rsi) <= lookback {
		return models.DivergenceNone
	}
	pc, pp := closes[len(closes)-1], closes[len(closes)-1-lookback]
	if pp == 0 {
		return models.DivergenceNone
	}
	priceSlope := (pc - pp) / pp * 100
	rsiDelta := rsi[len(rsi)-1] - rsi[len(rsi)-1-lookback]
	switch {
	case priceSlope < -2 && rsiDelta > 5:
		return models.DivergenceBullish
	case priceSlope > 2 && rsiDelta < -5:
		return models.DivergenceBearish
	default:
		return models.DivergenceNone
	}
}

// lastOf returns the final element of a series, 0 when empty.
func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
