// Command cryosweep drives cryogenic transport measurements: I-V sweeps,
// differential conductance, Hall and R(T) protocols, with optional nesting
// over magnetic field or temperature.
package main

import (
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
