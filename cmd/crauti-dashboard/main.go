package main

import (
	"fmt"
	"os"

	"github.com/rcourtman/crauti-dashboard/internal/config"
	"github.com/rcourtman/crauti-dashboard/internal/gatewayclient"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rcourtman/crauti-dashboard/internal/normalize"
	"github.com/rcourtman/crauti-dashboard/internal/transport"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globalFlags override values loaded from the environment.
type globalFlags struct {
	gatewayURL string
	logLevel   string
	logFormat  string
	insecure   bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "crauti-dashboard",
		Short:         "Read-only dashboard for a crauti gateway",
		Long:          `crauti-dashboard polls a crauti gateway admin API and serves a normalized, read-only view of its configuration and mount points.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.gatewayURL, "gateway-url", "", "gateway admin API base URL (overrides "+config.EnvGatewayAdminURL+")")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides "+config.EnvLogLevel+")")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json, console or auto (overrides "+config.EnvLogFormat+")")
	pf.BoolVar(&flags.insecure, "insecure-skip-verify", false, "skip TLS verification of the admin API")

	root.AddCommand(
		newServeCmd(flags),
		newConfigCmd(flags),
		newMountPointCmd(flags),
		newMountPointsCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "crauti-dashboard %s\n", Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadRuntime loads and validates config, applies flag overrides and
// initializes logging and the DNS cache.
func loadRuntime(cmd *cobra.Command, flags *globalFlags, component string) (*config.Config, error) {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if flags.gatewayURL != "" {
		cfg.GatewayAdminURL = flags.gatewayURL
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
		cfg.EnvOverrides[config.EnvLogLevel] = true
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	if cmd.Flags().Changed("insecure-skip-verify") {
		cfg.InsecureSkipVerify = flags.insecure
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.Init(cfg.LoggingConfig(component))
	transport.SetDNSCacheTTL(cfg.DNSCacheTTL)
	return cfg, nil
}

func newGatewayClient(cfg *config.Config) *gatewayclient.Client {
	return gatewayclient.New(gatewayclient.Config{
		BaseURL:            cfg.GatewayAdminURL,
		Timeout:            cfg.RequestTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		UserAgent:          "crauti-dashboard/" + Version,
		Logger:             logging.WithComponent("gatewayclient"),
	})
}

func newNormalizer(cfg *config.Config) *normalize.Normalizer {
	return normalize.New(normalize.WithWireUnit(cfg.DurationWireUnit))
}
