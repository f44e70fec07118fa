//go:build linux

// Command rlimsup launches a program, watches its entire process subtree's
// CPU time, wall-clock age, and resident memory, and tears the subtree down
// if any configured ceiling is exceeded.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ja7ad/rlimsup/pkg/limits"
	"github.com/ja7ad/rlimsup/pkg/rlog"
	"github.com/ja7ad/rlimsup/pkg/supervisor"
)

// fileLimits is the shape --config FILE is unmarshaled into. Pointer fields
// so an absent key leaves the corresponding Limits field untouched rather
// than zeroing it.
type fileLimits struct {
	TimeLimitS       *float64 `yaml:"time_limit_s"`
	RealTimeLimitS   *float64 `yaml:"real_time_limit_s"`
	SpaceLimitMB     *float64 `yaml:"space_limit_mb"`
	PropagateSignals *bool    `yaml:"propagate_signals"`
}

func main() {
	var (
		timeLimit   int
		realLimit   int
		spaceLimit  int
		propagate   bool
		showVersion bool
		configPath  string
	)

	root := &cobra.Command{
		Use:   "rlimsup [flags] program [arg ...]",
		Short: "Run a program under CPU-time, wall-clock, and memory limits",
		Long: `rlimsup launches a program, samples its entire process subtree's CPU
time and resident memory on a fixed interval, and terminates the subtree if
any configured ceiling is exceeded. It reports peak resource usage and a
structured termination status.

Examples:
  rlimsup -t 10 -s 512 ./build.sh
  rlimsup --real-time-limit=30 --kill sleep 60`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println("rlimsup version " + supervisor.Version)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("no program given")
			}
			return runSupervised(cmd, args, timeLimit, realLimit, spaceLimit, propagate, configPath)
		},
	}

	// Flags are only recognized up to the first positional argument; the
	// program being supervised keeps its own flags untouched.
	root.Flags().SetInterspersed(false)

	root.Flags().IntVarP(&timeLimit, "time-limit", "t", 0, "CPU-time ceiling in seconds over the subtree")
	root.Flags().IntVarP(&realLimit, "real-time-limit", "r", 0, "wall-clock ceiling in seconds since launch")
	root.Flags().IntVarP(&spaceLimit, "space-limit", "s", 0, "peak resident memory ceiling in megabytes")
	root.Flags().BoolVarP(&propagate, "kill", "k", false, "re-raise the terminating signal on self after cleanup")
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "print version and exit")
	root.Flags().StringVar(&configPath, "config", "", "load limits from a YAML file (explicit flags still win)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rlimsup error: %s\n", err)
		os.Exit(1)
	}
}

func runSupervised(cmd *cobra.Command, args []string, timeLimit, realLimit, spaceLimit int, propagate bool, configPath string) error {
	kcfg, err := limits.ReadKernelConfig()
	if err != nil {
		return err
	}

	lim := limits.DefaultLimits(kcfg.TotalMemMB)

	if configPath != "" {
		if err := applyConfigFile(configPath, &lim); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("time-limit") {
		if timeLimit <= 0 {
			return fmt.Errorf("time-limit must be a positive integer")
		}
		lim.TimeLimitS = float64(timeLimit)
	}
	if flags.Changed("real-time-limit") {
		if realLimit <= 0 {
			return fmt.Errorf("real-time-limit must be a positive integer")
		}
		lim.RealTimeLimitS = float64(realLimit)
	}
	if flags.Changed("space-limit") {
		if spaceLimit <= 0 {
			return fmt.Errorf("space-limit must be a positive integer")
		}
		lim.SpaceLimitMB = float64(spaceLimit)
	}
	if propagate {
		lim.PropagateSignals = true
	}

	log := rlog.New(os.Stderr)
	sup := supervisor.New(kcfg, lim, log)

	report, err := sup.Run(args[0], args[1:])
	if err != nil {
		return err
	}

	if supervisor.PropagateSelf(lim, report) {
		// The re-raised signal's default disposition terminates this
		// process; block so the parent shell sees that cause of death
		// instead of racing it with our own os.Exit below.
		select {}
	}

	os.Exit(report.ExitCode)
	return nil
}

func applyConfigFile(path string, lim *limits.Limits) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fl fileLimits
	if err := yaml.Unmarshal(b, &fl); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if fl.TimeLimitS != nil {
		lim.TimeLimitS = *fl.TimeLimitS
	}
	if fl.RealTimeLimitS != nil {
		lim.RealTimeLimitS = *fl.RealTimeLimitS
	}
	if fl.SpaceLimitMB != nil {
		lim.SpaceLimitMB = *fl.SpaceLimitMB
	}
	if fl.PropagateSignals != nil {
		lim.PropagateSignals = *fl.PropagateSignals
	}
	return nil
}
