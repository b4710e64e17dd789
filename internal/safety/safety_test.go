package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func defaultChecker() *Checker {
	return NewChecker(DefaultLimits())
}

func TestCheckMagneticField(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	tests := []struct {
		name     string
		fx, fy   float64
		wantSafe bool
	}{
		{"small in-plane vector", 1.0, 1.0, true},
		{"zero field", 0, 0, true},
		{"exactly at limit on one axis", 9.0, 0, true},
		{"diagonal exceeds magnitude limit", 10.0, 10.0, false},
		{"components safe but magnitude not", 7.0, 7.0, false},
		{"negative components use magnitude", -6.0, -2.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantSafe, c.CheckMagneticField(tt.fx, tt.fy))
		})
	}
}

func TestCheckCurrent(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	assert.True(t, c.CheckCurrent(1e-6))
	assert.True(t, c.CheckCurrent(-1e-6))
	assert.True(t, c.CheckCurrent(0.1))
	assert.False(t, c.CheckCurrent(1.0))
	assert.False(t, c.CheckCurrent(-1.0))
}

func TestCheckVoltage(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	assert.True(t, c.CheckVoltage(10.0))
	assert.True(t, c.CheckVoltage(-200.0))
	assert.False(t, c.CheckVoltage(250.0))
}

func TestCheckTemperature(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	assert.True(t, c.CheckTemperature(1.0))
	assert.True(t, c.CheckTemperature(400.0))
	assert.False(t, c.CheckTemperature(500.0))
	assert.False(t, c.CheckTemperature(0.001), "below base temperature floor")
}

func TestCheckScalarDispatch(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	assert.True(t, c.CheckScalar(KindCurrent, 0.05))
	assert.False(t, c.CheckScalar(KindCurrent, 0.5))
	assert.True(t, c.CheckScalar(KindFieldRampRate, 0.1))
	assert.False(t, c.CheckScalar(KindFieldRampRate, 2.0))
	assert.True(t, c.CheckScalar(KindTempRampRate, 1.0))
	assert.False(t, c.CheckScalar(KindTempRampRate, 10.0))
	assert.False(t, c.CheckScalar(Kind(99), 0), "unknown kind is never safe")
}

func TestCheckSweep(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	tests := []struct {
		name     string
		sweep    SweepCheck
		wantSafe bool
	}{
		{
			"safe current sweep",
			SweepCheck{CurrentRange: &[2]float64{-1e-6, 1e-6}},
			true,
		},
		{
			"current endpoint over limit",
			SweepCheck{CurrentRange: &[2]float64{-1.0, 1e-6}},
			false,
		},
		{
			"all ranges safe",
			SweepCheck{
				CurrentRange:     &[2]float64{-1e-6, 1e-6},
				VoltageRange:     &[2]float64{-0.01, 0.01},
				FieldRange:       &[2]float64{-9.0, 9.0},
				TemperatureRange: &[2]float64{0.05, 300.0},
			},
			true,
		},
		{
			"temperature endpoint below minimum",
			SweepCheck{TemperatureRange: &[2]float64{0.001, 300.0}},
			false,
		},
		{
			"field endpoint over limit",
			SweepCheck{FieldRange: &[2]float64{-12.0, 0.0}},
			false,
		},
		{
			"empty descriptor has nothing to reject",
			SweepCheck{},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantSafe, c.CheckSweep(tt.sweep))
		})
	}
}

func TestCustomLimits(t *testing.T) {
	t.Parallel()
	c := NewChecker(Limits{MaxCurrent: 1e-3, MaxField: 1.0, MinTemperature: 0.01, MaxTemperature: 400})

	assert.True(t, c.CheckCurrent(5e-4))
	assert.False(t, c.CheckCurrent(5e-3))
	assert.False(t, c.CheckMagneticField(1.0, 1.0))
}

func TestEstimateDuration(t *testing.T) {
	t.Parallel()
	c := defaultChecker()

	// plain points-and-delay sweep
	d := c.EstimateDuration(SweepCheck{NumPoints: 100, DelayBetweenPoints: 100 * time.Millisecond})
	assert.Equal(t, 10*time.Second, d)

	// field excursion adds ramp time at the given rate
	d = c.EstimateDuration(SweepCheck{
		NumPoints:          10,
		DelayBetweenPoints: time.Second,
		FieldRange:         &[2]float64{0, 1.0},
		FieldRampRate:      0.5, // 2 minutes of ramping
	})
	assert.Equal(t, 10*time.Second+2*time.Minute, d)

	// temperature sweeps are dominated by per-point settling
	d = c.EstimateDuration(SweepCheck{
		NumPoints:          2,
		DelayBetweenPoints: time.Second,
		TemperatureRange:   &[2]float64{4.0, 4.0},
		TempSettlingTime:   time.Minute,
	})
	assert.Equal(t, 2*time.Second+2*time.Minute, d)
}
