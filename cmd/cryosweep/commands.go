package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/attolab/cryosweep/internal/config"
	"github.com/attolab/cryosweep/internal/db"
	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/station"
	"github.com/attolab/cryosweep/internal/sweep"
	"github.com/attolab/cryosweep/internal/version"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cryosweep",
		Short: "Cryogenic transport measurement orchestration",
		Long: `cryosweep runs transport measurement protocols on a dilution
refrigerator rig: DC and SMU I-V sweeps, lock-in differential conductance,
Hall sweeps, resistance vs temperature, and nested sweeps over magnetic
field or temperature. Runs are recorded to sqlite.

Quick start:
  cryosweep status --config station.json
  cryosweep iv --start=-1e-6 --stop=1e-6 --points=100 --bidirectional
  cryosweep rt --temps=4.2,10,20,50 --excitation=1e-6`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Station config JSON file")
	cmd.PersistentFlags().String("db", "", "Sqlite database path (overrides config)")

	cmd.AddCommand(statusCmd())
	cmd.AddCommand(setupDCCmd())
	cmd.AddCommand(ivCmd())
	cmd.AddCommand(smuIVCmd())
	cmd.AddCommand(diffCmd())
	cmd.AddCommand(hallCmd())
	cmd.AddCommand(rtCmd())
	cmd.AddCommand(fieldSweepCmd())
	cmd.AddCommand(angleSweepCmd())
	cmd.AddCommand(tempSweepCmd())
	cmd.AddCommand(monitorCmd())
	cmd.AddCommand(runsCmd())
	cmd.AddCommand(stopCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cryosweep %s (%s, built %s)\n",
				version.Version, version.GitSHA, version.BuildTime)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

func openStore(cmd *cobra.Command, cfg *config.Config) (*db.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = cfg.GetDatabasePath()
	}
	return db.Open(path)
}

// openStation wires config, store and instruments; the returned cleanup
// closes both.
func openStation(cmd *cobra.Command) (*station.Station, *db.DB, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := openStore(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := station.New(cfg, station.Options{Store: store})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		s.Close()
		store.Close()
	}
	return s, store, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// parseFloats parses a comma-separated list like "4.2,10,20".
func parseFloats(list string) ([]float64, error) {
	parts := strings.Split(list, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// addSpecFlags registers the inner sweep flags shared by every protocol.
func addSpecFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("start", 0, "Sweep start value")
	cmd.Flags().Float64("stop", 0, "Sweep stop value")
	cmd.Flags().Int("points", 100, "Number of sweep points")
	cmd.Flags().Bool("bidirectional", false, "Retrace the sweep in reverse")
	cmd.Flags().Duration("delay", 100*time.Millisecond, "Delay after each setpoint")
	cmd.Flags().Int("averages", 1, "Readings averaged per point")
	cmd.Flags().Float64("compliance", 0, "Compliance limit (0 leaves instrument setting)")
}

func specFromFlags(cmd *cobra.Command) sweep.Spec {
	start, _ := cmd.Flags().GetFloat64("start")
	stop, _ := cmd.Flags().GetFloat64("stop")
	points, _ := cmd.Flags().GetInt("points")
	bidi, _ := cmd.Flags().GetBool("bidirectional")
	delay, _ := cmd.Flags().GetDuration("delay")
	averages, _ := cmd.Flags().GetInt("averages")
	compliance, _ := cmd.Flags().GetFloat64("compliance")
	return sweep.Spec{
		Start:           start,
		Stop:            stop,
		NumPoints:       points,
		Bidirectional:   bidi,
		InterPointDelay: delay,
		Averages:        averages,
		Compliance:      compliance,
	}
}

func reportRun(cmd *cobra.Command, run *sweep.RunResult) {
	if run == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s): %d samples in %s\n",
		run.ID, run.Kind, len(run.Samples), run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
}

func reportRuns(cmd *cobra.Command, runs []*sweep.RunResult) {
	for _, run := range runs {
		reportRun(cmd, run)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connected instruments and current readbacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			st := s.Status()
			if len(st.Connected) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no instruments configured")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", strings.Join(st.Connected, ", "))
			if st.Field != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "field: (%.4f, %.4f) T, |B| = %.4f T, angle %.1f deg\n",
					st.Field.X, st.Field.Y, st.Field.Magnitude(), st.Field.Angle())
			}
			if st.FieldRampRate != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "field ramp rate: %.3f T/min\n", *st.FieldRampRate)
			}
			if st.SampleTemperature != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "sample temperature: %.4f K\n", *st.SampleTemperature)
			}
			if st.MonitorRunning {
				fmt.Fprintln(cmd.OutOrStdout(), "background monitor: running")
			}
			return nil
		},
	}
}

func setupDCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-dc",
		Short: "Configure the source/meter pair for delta-mode DC transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := s.SetupDCTransport(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delta mode armed, meter autoranged at 1 NPLC")
			return nil
		},
	}
}

func ivCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Run a DC I-V sweep on the current source / nanovoltmeter pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			run, err := s.RunIV(ctx, specFromFlags(cmd))
			reportRun(cmd, run)
			return err
		},
	}
	addSpecFlags(cmd)
	return cmd
}

func smuIVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smu-iv",
		Short: "Run an I-V sweep on one SMU channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, _ := cmd.Flags().GetString("channel")

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			run, err := s.RunSMUIV(ctx, instrument.ChannelID(channel), specFromFlags(cmd))
			reportRun(cmd, run)
			return err
		},
	}
	addSpecFlags(cmd)
	cmd.Flags().String("channel", "a", "SMU channel (a or b)")
	return cmd
}

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Run a lock-in differential conductance sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			amplitude, _ := cmd.Flags().GetFloat64("ac-amplitude")
			frequency, _ := cmd.Flags().GetFloat64("frequency")
			tc, _ := cmd.Flags().GetFloat64("time-constant")
			factor, _ := cmd.Flags().GetFloat64("settling-factor")

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			run, err := s.RunDifferential(ctx, instrument.ChannelID(channel), sweep.DiffSpec{
				Spec:           specFromFlags(cmd),
				ACAmplitude:    amplitude,
				Frequency:      frequency,
				TimeConstant:   tc,
				SettlingFactor: factor,
			})
			reportRun(cmd, run)
			return err
		},
	}
	addSpecFlags(cmd)
	cmd.Flags().String("channel", "a", "SMU channel sourcing the DC bias")
	cmd.Flags().Float64("ac-amplitude", 0.001, "AC excitation amplitude in V")
	cmd.Flags().Float64("frequency", 1000, "Excitation frequency in Hz")
	cmd.Flags().Float64("time-constant", 0.03, "Lock-in time constant in s")
	cmd.Flags().Float64("settling-factor", 0, "Settling wait as a multiple of the time constant (0 = 5)")
	return cmd
}

func hallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hall",
		Short: "Run a fixed-current Hall sweep over the magnetic field",
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, _ := cmd.Flags().GetString("axis")
			from, _ := cmd.Flags().GetFloat64("from")
			to, _ := cmd.Flags().GetFloat64("to")
			points, _ := cmd.Flags().GetInt("points")
			bidi, _ := cmd.Flags().GetBool("bidirectional")
			excitation, _ := cmd.Flags().GetFloat64("excitation")
			transverse, _ := cmd.Flags().GetBool("transverse")
			rampRate, _ := cmd.Flags().GetFloat64("ramp-rate")

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if rampRate > 0 {
				if err := s.SetFieldRampRate(rampRate); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			run, err := s.RunHall(ctx, sweep.HallSpec{
				Axis:          axis,
				FieldStart:    from,
				FieldStop:     to,
				FieldPoints:   points,
				Bidirectional: bidi,
				Excitation:    excitation,
				Transverse:    transverse,
			})
			reportRun(cmd, run)
			return err
		},
	}
	cmd.Flags().String("axis", "x", "Swept field axis (x or y)")
	cmd.Flags().Float64("from", 0, "Field start in T")
	cmd.Flags().Float64("to", 0, "Field stop in T")
	cmd.Flags().Int("points", 100, "Number of field points")
	cmd.Flags().Bool("bidirectional", false, "Retrace the field sweep in reverse")
	cmd.Flags().Float64("excitation", 1e-6, "Probe current in A")
	cmd.Flags().Bool("transverse", false, "Also measure the transverse pair")
	cmd.Flags().Float64("ramp-rate", 0, "Magnet ramp rate in T/min (0 keeps the configured rate)")
	return cmd
}

func rtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rt",
		Short: "Measure resistance against temperature",
		RunE: func(cmd *cobra.Command, args []string) error {
			temps, _ := cmd.Flags().GetString("temps")
			excitation, _ := cmd.Flags().GetFloat64("excitation")
			rampRate, _ := cmd.Flags().GetFloat64("ramp-rate")
			heaterRange, _ := cmd.Flags().GetInt("heater-range")

			setpoints, err := parseFloats(temps)
			if err != nil {
				return fmt.Errorf("--temps: %w", err)
			}

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if heaterRange >= 0 {
				if err := s.SetHeaterRange(heaterRange); err != nil {
					return err
				}
			}
			if rampRate > 0 {
				if err := s.SetTemperatureRampRate(rampRate); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			run, err := s.RunRT(ctx, setpoints, excitation)
			reportRun(cmd, run)
			return err
		},
	}
	cmd.Flags().String("temps", "", "Comma-separated temperature setpoints in K (required)")
	cmd.Flags().Float64("excitation", 1e-6, "Probe current in A")
	cmd.Flags().Float64("ramp-rate", 0, "Setpoint ramp rate in K/min (0 keeps the configured rate)")
	cmd.Flags().Int("heater-range", -1, "Heater output range for the control loop (-1 keeps the configured range)")
	cmd.MarkFlagRequired("temps")
	return cmd
}

func fieldSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field-sweep",
		Short: "Run an I-V sweep at each field setpoint along one axis",
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, _ := cmd.Flags().GetString("axis")
			fields, _ := cmd.Flags().GetString("fields")
			rampRate, _ := cmd.Flags().GetFloat64("ramp-rate")

			magnitudes, err := parseFloats(fields)
			if err != nil {
				return fmt.Errorf("--fields: %w", err)
			}
			targets, err := sweep.AxisTargets(axis, magnitudes)
			if err != nil {
				return err
			}

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if rampRate > 0 {
				if err := s.SetFieldRampRate(rampRate); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			runs, err := s.RunFieldSweep(ctx, targets, specFromFlags(cmd))
			reportRuns(cmd, runs)
			return err
		},
	}
	addSpecFlags(cmd)
	cmd.Flags().String("axis", "x", "Field axis (x or y)")
	cmd.Flags().String("fields", "", "Comma-separated field setpoints in T (required)")
	cmd.Flags().Float64("ramp-rate", 0, "Magnet ramp rate in T/min (0 keeps the configured rate)")
	cmd.MarkFlagRequired("fields")
	return cmd
}

func angleSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "angle-sweep",
		Short: "Run an I-V sweep at each field orientation at fixed magnitude",
		Long: `Rotates the in-plane field through the given angles at a fixed
magnitude, running an I-V sweep at each orientation. Angles are in degrees
in atan2 convention: sweeping through the ±180° boundary shows a readback
discontinuity, which is inherent to the representation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			magnitude, _ := cmd.Flags().GetFloat64("magnitude")
			angles, _ := cmd.Flags().GetString("angles")
			rampRate, _ := cmd.Flags().GetFloat64("ramp-rate")

			anglesDeg, err := parseFloats(angles)
			if err != nil {
				return fmt.Errorf("--angles: %w", err)
			}

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if rampRate > 0 {
				if err := s.SetFieldRampRate(rampRate); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			runs, err := s.RunAngleSweep(ctx, magnitude, anglesDeg, specFromFlags(cmd))
			reportRuns(cmd, runs)
			return err
		},
	}
	addSpecFlags(cmd)
	cmd.Flags().Float64("magnitude", 0, "Field magnitude in T (required)")
	cmd.Flags().String("angles", "", "Comma-separated angles in degrees (required)")
	cmd.Flags().Float64("ramp-rate", 0, "Magnet ramp rate in T/min (0 keeps the configured rate)")
	cmd.MarkFlagRequired("magnitude")
	cmd.MarkFlagRequired("angles")
	return cmd
}

func tempSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "temp-sweep",
		Short: "Run an I-V sweep at each temperature setpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			temps, _ := cmd.Flags().GetString("temps")
			rampRate, _ := cmd.Flags().GetFloat64("ramp-rate")

			setpoints, err := parseFloats(temps)
			if err != nil {
				return fmt.Errorf("--temps: %w", err)
			}

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if rampRate > 0 {
				if err := s.SetTemperatureRampRate(rampRate); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			runs, err := s.RunTemperatureSweep(ctx, setpoints, specFromFlags(cmd))
			reportRuns(cmd, runs)
			return err
		},
	}
	addSpecFlags(cmd)
	cmd.Flags().String("temps", "", "Comma-separated temperature setpoints in K (required)")
	cmd.Flags().Float64("ramp-rate", 0, "Setpoint ramp rate in K/min (0 keeps the configured rate)")
	cmd.MarkFlagRequired("temps")
	return cmd
}

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch sample resistance in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			excitation, _ := cmd.Flags().GetFloat64("excitation")
			duration, _ := cmd.Flags().GetDuration("duration")

			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			if err := s.StartMonitoring(excitation); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitoring at %g A, interrupt to stop\n", excitation)

			if duration > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(duration):
				}
			} else {
				<-ctx.Done()
			}

			samples, err := s.StopMonitoring(context.Background())
			fmt.Fprintf(cmd.OutOrStdout(), "collected %d samples\n", len(samples))
			return err
		},
	}
	cmd.Flags().Float64("excitation", 1e-6, "Probe current in A")
	cmd.Flags().Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	return cmd
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %s  %d samples\n",
					r.ID, r.Kind, r.StartedAt.Format(time.RFC3339), r.SampleCount)
			}
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Emergency stop: zero all outputs and pause the magnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, cleanup, err := openStation(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := s.EmergencyStop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all outputs disabled, magnet paused")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run database schema",
	}

	openDB := func(c *cobra.Command) (*db.DB, error) {
		cfg, err := loadConfig(c)
		if err != nil {
			return nil, err
		}
		return openStore(c, cfg)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(c *cobra.Command, args []string) error {
			store, err := openDB(c)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.MigrateUp()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(c *cobra.Command, args []string) error {
			store, err := openDB(c)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.MigrateDown()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(c *cobra.Command, args []string) error {
			store, err := openDB(c)
			if err != nil {
				return err
			}
			defer store.Close()
			version, dirty, err := store.MigrateVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version (dirty-state recovery only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad version %q: %w", args[0], err)
			}
			store, err := openDB(c)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.MigrateForce(version)
		},
	})

	return cmd
}
