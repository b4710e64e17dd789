package sweep

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/attolab/cryosweep/internal/instrument"
)

// Probe is the averaged resistance measurement shared by the field and
// temperature protocols and the background monitor: a fixed excitation
// current with the resulting voltage averaged over several readings.
type Probe struct {
	Source instrument.CurrentSource
	Meter  instrument.Voltmeter

	// Averages is the reading count per measurement. Zero means 1.
	Averages int
	// InterAverageDelay is the wait between consecutive readings. Zero
	// means 50 ms.
	InterAverageDelay time.Duration
}

// Reading is one averaged probe measurement.
type Reading struct {
	Voltage    float64
	Current    float64
	Resistance float64
}

// Measure averages the configured number of voltage readings, reads the
// excitation current back from the source, and returns V, I and V/I.
func (p *Probe) Measure(ctx context.Context) (Reading, error) {
	n := p.Averages
	if n < 1 {
		n = 1
	}
	delay := p.InterAverageDelay
	if delay <= 0 {
		delay = defaultInterAverageDelay
	}

	readings := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, err := p.Meter.Voltage()
		if err != nil {
			return Reading{}, err
		}
		readings = append(readings, v)
		if i < n-1 {
			if err := sleep(ctx, delay); err != nil {
				return Reading{}, err
			}
		}
	}
	voltage := stat.Mean(readings, nil)

	current, err := p.Source.Current().Get()
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Voltage:    voltage,
		Current:    current,
		Resistance: Quotient(voltage, current),
	}, nil
}
