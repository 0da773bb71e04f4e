package volatility

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"stablewatch/services/marketdata"
)

// Annualization factor for daily candles
const annualizationDays = 365

// All tracked assets are USD-pegged stablecoins, so the error metric is
// measured against a constant $1 target.
const pegTarget = 1.0

// RogersSatchell computes the annualized Rogers-Satchell realized
// volatility for one day's candle. The estimator is undefined for
// non-positive prices, so those are rejected here rather than letting NaN
// propagate into storage.
func RogersSatchell(c marketdata.Candle) (float64, error) {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return 0, fmt.Errorf("non-positive OHLC values on %s", c.Date.Format("2006-01-02"))
	}

	term1 := math.Log(c.High/c.Close) * math.Log(c.High/c.Open)
	term2 := math.Log(c.Low/c.Close) * math.Log(c.Low/c.Open)
	vol := math.Sqrt(annualizationDays * (term1 + term2))

	// high < open or low > close break the estimator's sign assumptions
	if math.IsNaN(vol) {
		return 0, fmt.Errorf("inconsistent OHLC ordering on %s", c.Date.Format("2006-01-02"))
	}
	return vol, nil
}

// DailyMSE computes the squared deviation of one day's average OHLC price
// from the $1 peg.
func DailyMSE(c marketdata.Candle) float64 {
	actual := (c.Open + c.High + c.Low + c.Close) / 4
	return (actual - pegTarget) * (actual - pegTarget)
}

// SeriesKurtosis computes the sample excess kurtosis of a volatility
// series. The unbiased estimator needs at least four observations; shorter
// series return nil so the column stays NULL instead of holding NaN.
func SeriesKurtosis(vols []float64) *float64 {
	if len(vols) < 4 {
		return nil
	}
	k := stat.ExKurtosis(vols, nil)
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return nil
	}
	return &k
}
