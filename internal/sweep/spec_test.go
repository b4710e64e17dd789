package sweep

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsLinear(t *testing.T) {
	spec := Spec{Start: 0, Stop: 1, NumPoints: 5}
	points, err := spec.Points()
	require.NoError(t, err)

	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestPointsEndpointsExact(t *testing.T) {
	// 0.1/7 is not representable; the endpoints must still be bit-exact
	spec := Spec{Start: -0.1, Stop: 0.1, NumPoints: 8}
	points, err := spec.Points()
	require.NoError(t, err)

	assert.Equal(t, -0.1, points[0])
	assert.Equal(t, 0.1, points[len(points)-1])
}

func TestPointsBidirectional(t *testing.T) {
	spec := Spec{Start: -1, Stop: 1, NumPoints: 4, Bidirectional: true}
	points, err := spec.Points()
	require.NoError(t, err)

	require.Len(t, points, 8)
	// the turnaround point appears twice, back to back
	assert.Equal(t, points[3], points[4])
	assert.Equal(t, 1.0, points[3])
	// the return leg is the exact reverse of the forward leg
	for i := 0; i < 4; i++ {
		assert.Equal(t, points[i], points[7-i], "point %d", i)
	}
}

func TestPointsTooFew(t *testing.T) {
	_, err := Spec{Start: 0, Stop: 1, NumPoints: 1}.Points()
	assert.Error(t, err)
}

func TestQuotient(t *testing.T) {
	tests := []struct {
		name      string
		num, den  float64
		want      float64
		wantIsInf bool
	}{
		{name: "ohmic", num: 0.1, den: 1e-4, want: 1000},
		{name: "zero current", num: 0.1, den: 0, wantIsInf: true},
		{name: "zero over zero", num: 0, den: 0, wantIsInf: true},
		{name: "negative", num: -0.1, den: 1e-4, want: -1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quotient(tt.num, tt.den)
			if tt.wantIsInf {
				assert.True(t, math.IsInf(got, 1))
				assert.False(t, math.IsNaN(got))
			} else {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
		})
	}
}

func TestReciprocal(t *testing.T) {
	assert.Equal(t, 2.0, Reciprocal(1e-4, 5e-5))
	// a vanishing response means vanishing conductance, not Inf
	assert.Equal(t, 0.0, Reciprocal(1e-4, 0))
}
