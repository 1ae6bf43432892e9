package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/mabsim/mabsim/sim"
)

var (
	configPath string // Path to the YAML run configuration
	logLevel   string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "mabsim",
	Short: "Offline simulator for comparing bandit policies against a decision log",
}

// runCmd executes one simulation described by the run configuration
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bandit policy comparison",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := LoadRunConfig(configPath)
		if err != nil {
			logrus.Fatalf("unable to read run config: %v", err)
		}
		dataset, err := LoadDataset(cfg.Data)
		if err != nil {
			logrus.Fatalf("unable to read decision log: %v", err)
		}
		arms := cfg.ArmsFor(dataset)
		bandits, err := cfg.BuildBandits(arms)
		if err != nil {
			logrus.Fatalf("unable to build policies: %v", err)
		}

		var scaler sim.Scaler
		if cfg.Scale {
			scaler = sim.NewStandardScaler()
		}

		simulator, err := sim.NewSimulator(bandits, dataset, scaler, sim.SimulatorConfig{
			TestSize:  cfg.TestSize,
			Ordered:   cfg.Ordered,
			BatchSize: cfg.BatchSize,
			Seed:      cfg.Seed,
			Quick:     cfg.Quick,
		})
		if err != nil {
			logrus.Fatalf("invalid simulation: %v", err)
		}

		startTime := time.Now()
		if err := simulator.Run(); err != nil {
			logrus.Fatalf("simulation failed: %v", err)
		}
		logrus.Infof("Simulation took %v", time.Since(startTime))

		for _, entry := range bandits {
			total := simulator.EvaluationsAvg[entry.Name][sim.CheckpointTotal]
			var net float64
			for _, st := range total {
				net += st.Sum
			}
			logrus.Infof("%s net reward %.2f (per arm: %v)", entry.Name, net, total)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "run.yaml", "Path to the YAML run configuration")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
