package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/proof-actor/log"
	"github.com/compose-network/proof-actor/prover-actor-app/config"
)

const defaultConfigPath = "prover-actor-app/configs/config.yaml"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "prover-actor",
		Short: "Proof request actor",
		Long:  "Registers proof requests and drives them through input generation and proving on a remote engine.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Server flags
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP API listen address")
	rootCmd.PersistentFlags().Bool("metrics", false, "expose prometheus metrics")

	// Actor flags
	rootCmd.PersistentFlags().Int64("max-proving-concurrency", 0, "maximum simultaneous proving tasks")
	rootCmd.PersistentFlags().String("engine-url", "", "remote proving service base URL")
	rootCmd.PersistentFlags().String("chain-specs", "", "chain spec YAML file")
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Str("engine_url", cfg.Engine.BaseURL).
		Str("chain_specs", cfg.Chains.SpecFile).
		Int64("max_proving_concurrency", cfg.Actor.MaxProvingConcurrency).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("Proof Request Actor\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}

	if cmd.Flag("max-proving-concurrency").Changed {
		cfg.Actor.MaxProvingConcurrency, _ = cmd.Flags().GetInt64("max-proving-concurrency")
	}
	if cmd.Flag("engine-url").Changed {
		cfg.Engine.BaseURL, _ = cmd.Flags().GetString("engine-url")
	}
	if cmd.Flag("chain-specs").Changed {
		cfg.Chains.SpecFile, _ = cmd.Flags().GetString("chain-specs")
	}
}
