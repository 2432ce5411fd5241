package damage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHalfOpen(t *testing.T) {
	cases := []struct {
		v    float64
		want int
	}{
		{5.999, 1},
		{6.0, 2},
		{6.999, 2},
		{7.0, 3},
		{12, 3},
		{-1, 1},
	}
	for _, c := range cases {
		got, err := Classify(c.v, []float64{6, 7})
		require.NoError(t, err)
		assert.Equalf(t, c.want, got, "value %v", c.v)
	}
}

func TestClassifyRejectsBadInput(t *testing.T) {
	_, err := Classify(1, nil)
	assert.Error(t, err)
	_, err = Classify(1, []float64{7, 6})
	assert.Error(t, err)
	_, err = Classify(1, []float64{6, 6})
	assert.Error(t, err)
	_, err = Classify(math.NaN(), []float64{6})
	assert.Error(t, err)
}

func TestCurveAtMedianIsHalf(t *testing.T) {
	c := Curve{Median: 8.3, Beta: 0.1}
	require.NoError(t, c.Validate())
	assert.InDelta(t, 50.0, c.Percent(8.3), 1e-9)
	assert.Equal(t, 0.0, c.Percent(0))
	assert.Less(t, c.Percent(7), c.Percent(9))
}

func TestCurveMatchesClosedForm(t *testing.T) {
	c := Curve{Median: 7.5, Beta: 0.11}
	for _, x := range []float64{6, 7, 8, 9} {
		want := 0.5 * math.Erfc(-(math.Log(x)-math.Log(c.Median))/(c.Beta*math.Sqrt2))
		assert.InDelta(t, want, c.Probability(x), 1e-12)
	}
}
