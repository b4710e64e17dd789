package sweep

import (
	"time"

	"github.com/google/uuid"

	"github.com/attolab/cryosweep/internal/instrument"
)

// Sample is one measured point. Samples are immutable once appended: a
// RunResult only ever grows.
type Sample struct {
	Index    int
	Setpoint float64 // commanded value of the swept quantity
	Taken    time.Time

	Voltage    float64
	Current    float64
	Resistance float64 // V/I, +Inf at I == 0

	// Temperature is the measured sample temperature in K, populated by
	// temperature-sweep paths only.
	Temperature float64

	// AC quantities, populated by lock-in paths only.
	ACVoltageX      float64
	ACVoltageY      float64
	ACVoltageR      float64
	ACPhaseDeg      float64
	DiffConductance float64 // excitation over AC response, 0 at vanishing response
	DiffResistance  float64 // AC response over excitation, +Inf at zero excitation
}

// OuterPoint tags a nested run with the outer setpoint that produced it.
type OuterPoint struct {
	Field *instrument.FieldVector // commanded field, nil for temperature sweeps

	Temperature       *float64 // commanded setpoint in K, nil for field sweeps
	ActualTemperature *float64 // readback after settling, when available
}

// RunResult is the ordered, append-only sample collection for one run.
type RunResult struct {
	ID          uuid.UUID
	Kind        string
	StartedAt   time.Time
	CompletedAt time.Time
	Spec        Spec
	Samples     []Sample

	// Outer is set when this run was one inner leg of a nested sweep.
	Outer *OuterPoint
}

func newRunResult(kind string, spec Spec) *RunResult {
	return &RunResult{
		ID:        uuid.New(),
		Kind:      kind,
		StartedAt: time.Now(),
		Spec:      spec,
	}
}

func (r *RunResult) append(s Sample) {
	s.Index = len(r.Samples)
	s.Taken = time.Now()
	r.Samples = append(r.Samples, s)
}

func (r *RunResult) finish() *RunResult {
	r.CompletedAt = time.Now()
	return r
}
