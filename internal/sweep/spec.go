// Package sweep implements the measurement engines: point sequence
// generation, the per-point measure loop with guaranteed safe shutdown, and
// the nested orchestrators that compose a slow outer dimension (magnetic
// field or temperature) with an inner sweep.
package sweep

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnsafeSweep is returned when a sweep endpoint or outer setpoint fails a
// safety check. Nothing has been written to hardware when this is returned.
var ErrUnsafeSweep = errors.New("sweep parameters fail safety limits")

// ErrChannelNotWired is returned when a protocol needs a measurement channel
// the rig does not have yet (e.g. the transverse Hall pair, which waits on a
// second lock-in). Returning this is deliberate: a silent constant 0 in the
// transverse column has burned people before.
var ErrChannelNotWired = errors.New("measurement channel not wired on this rig")

// Spec describes one sweep dimension. It is immutable once a run starts.
type Spec struct {
	Start     float64
	Stop      float64
	NumPoints int

	// Bidirectional appends the exact reverse of the forward sequence,
	// duplicating the turnaround point. The duplication is deliberate:
	// comparing the two traversals of the same setpoint detects hysteresis.
	Bidirectional bool

	// InterPointDelay is a fixed wait after each setpoint write. Electrical
	// setpoints settle fast; no readback polling is needed here.
	InterPointDelay time.Duration

	// Averages is the number of readings taken and averaged per point.
	// Zero means 1.
	Averages int

	// InterAverageDelay separates consecutive readings of one point.
	// Zero means 50ms.
	InterAverageDelay time.Duration

	// Compliance is the instrument-enforced limit on the complementary
	// quantity: a compliance voltage when sourcing current, a compliance
	// current when sourcing voltage.
	Compliance float64
}

// Validate checks the structural invariants of the spec. Safety limits are a
// separate concern, checked by the engines against the station's limits.
func (s Spec) Validate() error {
	if s.NumPoints < 2 {
		return fmt.Errorf("sweep needs at least 2 points, got %d", s.NumPoints)
	}
	return nil
}

// Points generates the commanded setpoint sequence: NumPoints values linearly
// spaced from Start to Stop inclusive, followed by the exact reverse when
// Bidirectional is set.
func (s Spec) Points() ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	forward := make([]float64, s.NumPoints)
	step := (s.Stop - s.Start) / float64(s.NumPoints-1)
	for i := range forward {
		forward[i] = s.Start + float64(i)*step
	}
	// pin the endpoint so accumulated float error cannot overshoot Stop
	forward[s.NumPoints-1] = s.Stop

	if !s.Bidirectional {
		return forward, nil
	}

	points := make([]float64, 0, 2*s.NumPoints)
	points = append(points, forward...)
	for i := s.NumPoints - 1; i >= 0; i-- {
		points = append(points, forward[i])
	}
	return points, nil
}

func (s Spec) averages() int {
	if s.Averages < 1 {
		return 1
	}
	return s.Averages
}

const defaultInterAverageDelay = 50 * time.Millisecond

func (s Spec) interAverageDelay() time.Duration {
	if s.InterAverageDelay == 0 {
		return defaultInterAverageDelay
	}
	return s.InterAverageDelay
}

// Quotient divides numerator by denominator with the degenerate case pinned:
// a zero denominator yields +Inf rather than NaN or a panic, so a zero-bias
// point cannot poison downstream averaging.
func Quotient(numerator, denominator float64) float64 {
	if denominator == 0 {
		return math.Inf(1)
	}
	return numerator / denominator
}

// Reciprocal divides like Quotient but pins the degenerate case to 0
// instead of +Inf (a vanishing response means vanishing conductance).
func Reciprocal(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
