// Package damage holds the per-feature damage rules used by impact functions.
package damage

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// Classify returns the 1-based class of value for ascending breakpoints.
// Classes are half-open: value < b[0] is class 1, b[i-1] <= value < b[i] is
// class i+1, value >= b[n-1] is class n+1.
func Classify(value float64, breakpoints []float64) (int, error) {
	if err := ValidateBreakpoints(breakpoints); err != nil {
		return 0, err
	}
	if math.IsNaN(value) {
		return 0, fmt.Errorf("cannot classify NaN")
	}
	for i, b := range breakpoints {
		if value < b {
			return i + 1, nil
		}
	}
	return len(breakpoints) + 1, nil
}

func ValidateBreakpoints(breakpoints []float64) error {
	if len(breakpoints) == 0 {
		return fmt.Errorf("at least one breakpoint is required")
	}
	if !slices.IsSorted(breakpoints) {
		return fmt.Errorf("breakpoints %v must be ascending", breakpoints)
	}
	for i := 1; i < len(breakpoints); i++ {
		if breakpoints[i] == breakpoints[i-1] {
			return fmt.Errorf("breakpoints %v must be strictly ascending", breakpoints)
		}
	}
	return nil
}

// Curve is a lognormal fragility curve: the probability of damage at hazard
// intensity x is the lognormal CDF with the given median and dispersion.
type Curve struct {
	Median float64
	Beta   float64
}

func (c Curve) Validate() error {
	if !(c.Median > 0) || !(c.Beta > 0) {
		return fmt.Errorf("lognormal curve needs positive median and beta, got %v/%v", c.Median, c.Beta)
	}
	return nil
}

// Probability returns P(damage | intensity x) in [0, 1].
func (c Curve) Probability(x float64) float64 {
	if x <= 0 {
		return 0
	}
	d := distuv.LogNormal{Mu: math.Log(c.Median), Sigma: c.Beta}
	return d.CDF(x)
}

// Percent returns the expected percentage damage at intensity x.
func (c Curve) Percent(x float64) float64 {
	return 100 * c.Probability(x)
}
