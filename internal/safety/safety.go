// Package safety validates measurement parameters against the station's
// configured hardware limits before anything is written to an instrument.
//
// All checks are pure predicates: they return false and emit a diagnostic on
// failure, they never touch hardware and never panic. A failed check must
// abort the run before any setpoint is applied.
package safety

import (
	"math"
	"time"

	"github.com/attolab/cryosweep/internal/monitoring"
)

// Limits is the process-wide safety configuration, loaded once at station
// construction and read-only afterwards.
type Limits struct {
	MaxField         float64 // T, vector magnitude
	MaxFieldRampRate float64 // T/min
	MaxCurrent       float64 // A
	MaxVoltage       float64 // V
	MaxTemperature   float64 // K
	MinTemperature   float64 // K
	MaxTempRampRate  float64 // K/min
}

// DefaultLimits returns the conservative defaults for the LD-400 rig.
func DefaultLimits() Limits {
	return Limits{
		MaxField:         9.0,
		MaxFieldRampRate: 1.0,
		MaxCurrent:       0.1,
		MaxVoltage:       200.0,
		MaxTemperature:   400.0,
		MinTemperature:   0.01,
		MaxTempRampRate:  5.0,
	}
}

// Kind identifies which limit a scalar check compares against.
type Kind int

const (
	KindCurrent Kind = iota
	KindVoltage
	KindTemperature
	KindFieldComponent
	KindFieldRampRate
	KindTempRampRate
)

// Checker performs limit checks against a fixed Limits record.
type Checker struct {
	limits Limits
}

// NewChecker returns a Checker bound to the given limits.
func NewChecker(limits Limits) *Checker {
	return &Checker{limits: limits}
}

// Limits returns a copy of the configured limits.
func (c *Checker) Limits() Limits { return c.limits }

// CheckScalar checks a single value against the limit for its kind.
func (c *Checker) CheckScalar(kind Kind, value float64) bool {
	switch kind {
	case KindCurrent:
		return c.CheckCurrent(value)
	case KindVoltage:
		return c.CheckVoltage(value)
	case KindTemperature:
		return c.CheckTemperature(value)
	case KindFieldComponent:
		return c.CheckMagneticField(value, 0)
	case KindFieldRampRate:
		return c.CheckFieldRampRate(value)
	case KindTempRampRate:
		return c.CheckTemperatureRampRate(value)
	default:
		monitoring.Logf("safety: unknown scalar kind %d", kind)
		return false
	}
}

// CheckMagneticField checks that the field vector magnitude is within the
// configured limit.
func (c *Checker) CheckMagneticField(fieldX, fieldY float64) bool {
	magnitude := math.Sqrt(fieldX*fieldX + fieldY*fieldY)
	if magnitude > c.limits.MaxField {
		monitoring.Logf("safety: field magnitude %.3f T exceeds limit %.3f T", magnitude, c.limits.MaxField)
		return false
	}
	return true
}

// CheckFieldRampRate checks a magnet ramp rate in T/min.
func (c *Checker) CheckFieldRampRate(rampRate float64) bool {
	if rampRate > c.limits.MaxFieldRampRate {
		monitoring.Logf("safety: field ramp rate %.3f T/min exceeds limit %.3f T/min", rampRate, c.limits.MaxFieldRampRate)
		return false
	}
	return true
}

// CheckCurrent checks a source current in A. The sign is irrelevant.
func (c *Checker) CheckCurrent(current float64) bool {
	if math.Abs(current) > c.limits.MaxCurrent {
		monitoring.Logf("safety: current %.6f A exceeds limit %.6f A", math.Abs(current), c.limits.MaxCurrent)
		return false
	}
	return true
}

// CheckVoltage checks a source voltage in V. The sign is irrelevant.
func (c *Checker) CheckVoltage(voltage float64) bool {
	if math.Abs(voltage) > c.limits.MaxVoltage {
		monitoring.Logf("safety: voltage %.3f V exceeds limit %.3f V", math.Abs(voltage), c.limits.MaxVoltage)
		return false
	}
	return true
}

// CheckTemperature checks a temperature setpoint in K against both the upper
// and lower limit. Below MinTemperature the control loop cannot regulate.
func (c *Checker) CheckTemperature(temperature float64) bool {
	if temperature > c.limits.MaxTemperature {
		monitoring.Logf("safety: temperature %.3f K exceeds maximum %.3f K", temperature, c.limits.MaxTemperature)
		return false
	}
	if temperature < c.limits.MinTemperature {
		monitoring.Logf("safety: temperature %.6f K below minimum %.6f K", temperature, c.limits.MinTemperature)
		return false
	}
	return true
}

// CheckTemperatureRampRate checks a temperature ramp rate in K/min.
func (c *Checker) CheckTemperatureRampRate(rampRate float64) bool {
	if rampRate > c.limits.MaxTempRampRate {
		monitoring.Logf("safety: temperature ramp rate %.3f K/min exceeds limit %.3f K/min", rampRate, c.limits.MaxTempRampRate)
		return false
	}
	return true
}

// SweepCheck describes the endpoints of a composite sweep for validation and
// time estimation. Nil ranges are simply not checked, so a sweep that only
// drives current carries only CurrentRange.
type SweepCheck struct {
	CurrentRange     *[2]float64 // A
	VoltageRange     *[2]float64 // V
	FieldRange       *[2]float64 // T, single-axis endpoints
	TemperatureRange *[2]float64 // K

	NumPoints          int
	DelayBetweenPoints time.Duration
	FieldRampRate      float64       // T/min, 0 means default
	TempRampRate       float64       // K/min, 0 means default
	TempSettlingTime   time.Duration // per outer point, 0 means default
}

// CheckSweep decomposes a composite sweep descriptor into per-kind scalar
// checks on both endpoints of every present range. All present ranges are
// checked even after the first failure so every violation gets a diagnostic.
func (c *Checker) CheckSweep(sweep SweepCheck) bool {
	safe := true

	if r := sweep.CurrentRange; r != nil {
		if !c.CheckCurrent(r[0]) || !c.CheckCurrent(r[1]) {
			safe = false
		}
	}
	if r := sweep.VoltageRange; r != nil {
		if !c.CheckVoltage(r[0]) || !c.CheckVoltage(r[1]) {
			safe = false
		}
	}
	if r := sweep.FieldRange; r != nil {
		if !c.CheckMagneticField(r[0], 0) || !c.CheckMagneticField(r[1], 0) {
			safe = false
		}
	}
	if r := sweep.TemperatureRange; r != nil {
		if !c.CheckTemperature(r[0]) || !c.CheckTemperature(r[1]) {
			safe = false
		}
	}

	return safe
}

// EstimateDuration returns an advisory estimate of the total sweep time:
// point count times inter-point delay, plus ramp time for any field or
// temperature excursion. Used for operator feedback only, never enforced.
func (c *Checker) EstimateDuration(sweep SweepCheck) time.Duration {
	numPoints := sweep.NumPoints
	if numPoints == 0 {
		numPoints = 100
	}
	delay := sweep.DelayBetweenPoints
	if delay == 0 {
		delay = 100 * time.Millisecond
	}

	total := time.Duration(numPoints) * delay

	if r := sweep.FieldRange; r != nil {
		rampRate := sweep.FieldRampRate
		if rampRate == 0 {
			rampRate = 0.1
		}
		rampMinutes := math.Abs(r[1]-r[0]) / rampRate
		total += time.Duration(rampMinutes * float64(time.Minute))
	}

	if r := sweep.TemperatureRange; r != nil {
		rampRate := sweep.TempRampRate
		if rampRate == 0 {
			rampRate = 1.0
		}
		settling := sweep.TempSettlingTime
		if settling == 0 {
			settling = 300 * time.Second
		}
		rampMinutes := math.Abs(r[1]-r[0]) / rampRate
		total += time.Duration(rampMinutes * float64(time.Minute))
		total += time.Duration(numPoints) * settling
	}

	return total
}
