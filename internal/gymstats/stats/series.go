// Package stats holds the small numeric helpers shared by the feature engineer,
// the learners and the plateau detector. All functions are total: empty input
// yields 0 instead of NaN.
package stats

import "math"

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance is the population variance.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values))
}

func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

func Skewness(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	m, sd := Mean(values), StdDev(values)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += math.Pow((v-m)/sd, 3)
	}
	return sum / float64(len(values))
}

// Kurtosis returns the excess kurtosis.
func Kurtosis(values []float64) float64 {
	if len(values) < 4 {
		return 0
	}
	m, sd := Mean(values), StdDev(values)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += math.Pow((v-m)/sd, 4)
	}
	return sum/float64(len(values)) - 3
}

// Slope of the least-squares line through (i, values[i]).
func Slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denominator
}

func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Regression holds the usual error metrics of a set of predictions.
type Regression struct {
	MSE  float64 `json:"mse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	RMSE float64 `json:"rmse"`
}

// Evaluate compares predictions against targets. Mismatched or empty input
// yields the zero value.
func Evaluate(predictions, targets []float64) Regression {
	if len(predictions) == 0 || len(predictions) != len(targets) {
		return Regression{}
	}
	n := float64(len(targets))
	var mse, mae float64
	for i, p := range predictions {
		d := p - targets[i]
		mse += d * d
		mae += math.Abs(d)
	}
	mse /= n
	mae /= n

	r2 := 0.0
	if v := Variance(targets); v > 0 {
		r2 = 1 - mse/v
	}

	return Regression{
		MSE:  mse,
		MAE:  mae,
		R2:   r2,
		RMSE: math.Sqrt(mse),
	}
}
