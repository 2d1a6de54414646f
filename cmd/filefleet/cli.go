package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tealstack/filefleet/internal/cli"
	"github.com/tealstack/filefleet/internal/config"
	"github.com/tealstack/filefleet/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "filefleet",
	Short: "FileFleet - clone-bot file sharing platform",
	Long: `FileFleet runs a primary file-sharing bot plus any number of
user-provisioned clone bots, each with its own credential, greeting,
membership gate and auto-delete policy.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		telemetry.Setup(verbose)
	},
}

// Build information variables
var (
	// Set by compiler via -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"

	configDir string
)

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "state directory (default: ~/.filefleet)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("FileFleet\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Git Commit: %s\n", gitCommit)
			fmt.Printf("Build Time: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	var opts []config.Option
	if configDir != "" {
		opts = append(opts, config.WithConfigDir(configDir))
	}
	appConfig, err := config.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(cli.ServeCommand(appConfig))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
