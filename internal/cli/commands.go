package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sqlsvc/internal/client"
	"sqlsvc/internal/common"
	"sqlsvc/internal/config"
	"sqlsvc/internal/host"
	"sqlsvc/internal/locator"
	"sqlsvc/internal/platform"
	"sqlsvc/internal/telemetry"
	versionpkg "sqlsvc/internal/version"
)

// CLI Constants
const (
	CmdRun     = "run"
	CmdCheck   = "check"
	CmdVersion = "version"

	FlagConfig  = "config"
	FlagVerbose = "verbose"
	FlagTimeout = "timeout"
)

// CLI Variables
var (
	configPath   string
	verbose      bool
	checkTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sqlsvc",
	Short: "sqlsvc - client orchestrator for the SQL tools service",
	Long: `sqlsvc launches the platform-specific SQL tools service, verifies
protocol/version compatibility, and keeps a single request/response session
open to it over stdio.

AVAILABLE COMMANDS:
  sqlsvc run                             # Launch the service and hold the session open
  sqlsvc check                           # Launch the service and report compatibility
  sqlsvc version                         # Show client version information

The service binary is looked up under the configured install directory and
downloaded from the configured URL when missing. A crashed service is never
restarted; restart sqlsvc to open a new session.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   CmdRun,
	Short: "Launch the tools service and hold the session open until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, registry, err := buildClient()
		if err != nil {
			return err
		}
		defer func() { _ = registry.Close() }()

		if err := c.Initialize(ctx); err != nil {
			return err
		}

		if err := c.WaitReady(ctx); err != nil {
			return err
		}
		common.CLILogger.Info("session ready: %s", locator.ServerURI(c.ServerPath()))

		if ok, err := c.WaitCompatible(ctx); err != nil {
			return err
		} else if !ok {
			common.CLILogger.Warn("service flagged incompatible; requests will be rejected")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return common.ErrSessionTerminated
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   CmdCheck,
	Short: "Launch the tools service and report version compatibility",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		c, registry, err := buildClient()
		if err != nil {
			return err
		}
		defer func() { _ = registry.Close() }()

		if err := c.Initialize(ctx); err != nil {
			return err
		}

		ok, err := c.WaitCompatible(ctx)
		if err != nil {
			return err
		}

		spec := c.LaunchSpec()
		common.CLILogger.Info("service: %s %v", spec.Command, spec.Args)
		if !ok {
			return fmt.Errorf("service at %s is not compatible", c.ServerPath())
		}
		common.CLILogger.Info("service at %s is compatible", locator.ServerURI(c.ServerPath()))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   CmdVersion,
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sqlsvc %s\n", versionpkg.Version)
		fmt.Printf("  commit: %s\n", versionpkg.GitCommit)
		fmt.Printf("  branch: %s\n", versionpkg.GitBranch)
		fmt.Printf("  built:  %s\n", versionpkg.BuildTime)
	},
}

// buildClient wires the leaf providers into a ServiceClient. The CLI owns
// the one instance and the disposables registry it hands to the client.
func buildClient() (*client.ServiceClient, *host.List, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Verbose = true
		common.ClientLogger.SetLevel(common.LogDebug)
		common.TransportLogger.SetLevel(common.LogDebug)
	}

	registry := host.NewList()
	notifier := host.NewLogNotifier(common.CLILogger)
	loc := locator.New(cfg.Service, locator.NewFileDownloader(), common.LocatorLogger)

	c, err := client.New(client.Options{
		Resolver:  platform.RuntimeResolver{},
		Locator:   loc,
		Config:    cfg,
		Telemetry: telemetry.NewLogEmitter(common.ClientLogger),
		Notifier:  notifier,
		Host:      registry,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, registry, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, FlagConfig, "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, FlagVerbose, false, "enable verbose service logging")
	checkCmd.Flags().DurationVar(&checkTimeout, FlagTimeout, 30*time.Second, "how long to wait for the compatibility verdict")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
