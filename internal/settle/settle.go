// Package settle provides the polling primitive used to wait for slow
// physical quantities (magnetic field, temperature, lock-in output) to
// stabilise after a setpoint change.
//
// A timeout here is a reported condition, not an error: stalls are common on
// a dilution refrigerator and callers typically log a warning and proceed
// with best-effort settling rather than abort a multi-hour run.
package settle

import (
	"context"
	"math"
	"time"
)

// ReadFunc reads the current value of the quantity being waited on.
type ReadFunc func() (float64, error)

// CondFunc reports whether a non-numeric settling condition holds, e.g. a
// magnet status readback containing "HOLDING".
type CondFunc func() (bool, error)

// Wait polls read at pollInterval cadence until the reading is within
// tolerance of target, or timeout elapses.
//
// The comparison uses absolute difference so it stays well-defined at
// target == 0. Returns (true, nil) once settled and (false, nil) on timeout.
// A read failure or context cancellation aborts the wait with that error.
func Wait(ctx context.Context, read ReadFunc, target, tolerance float64, timeout, pollInterval time.Duration) (bool, error) {
	return WaitCond(ctx, func() (bool, error) {
		v, err := read()
		if err != nil {
			return false, err
		}
		return math.Abs(v-target) <= tolerance, nil
	}, timeout, pollInterval)
}

// WaitCond polls cond at pollInterval cadence until it reports true, or
// timeout elapses. The condition is checked once immediately so an
// already-settled quantity returns without sleeping.
func WaitCond(ctx context.Context, cond CondFunc, timeout, pollInterval time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := cond()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		// sleep for the poll interval, clamped to the remaining budget
		sleep := pollInterval
		if remaining := time.Until(deadline); remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
