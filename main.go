package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cli "github.com/sentinelwatch/sentinel/cmd"
)

func main() {
	command := &cobra.Command{
		Use:   "sentinel",
		Short: "Privacy-preserving DeFi position monitor",
	}
	addRunCmd(command)
	addRegisterCmd(command)
	addSetupCmd(command)

	err := command.Execute()
	if err != nil {
		panic(err)
	}
}

// addRunCmd starts the monitoring agent
func addRunCmd(command *cobra.Command) {
	var configPath string
	var verbose bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring agent",
		Long:  "Start the monitoring agent: establish the encryption session and run periodic encrypted health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return cli.StartCMD(configPath)
		},
	}

	runCmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "Path to the configuration file")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	command.AddCommand(runCmd)
}

// addRegisterCmd derives the watchlist's position addresses
func addRegisterCmd(command *cobra.Command) {
	var configPath string

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Derive and print the position addresses for the watchlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
			return cli.RunRegister(configPath)
		},
	}

	registerCmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "Path to the configuration file")

	command.AddCommand(registerCmd)
}

// addSetupCmd writes the configuration interactively
func addSetupCmd(command *cobra.Command) {
	var configPath string

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively create the agent configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
			return cli.RunSetup(configPath)
		},
	}

	setupCmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "Path to the configuration file")

	command.AddCommand(setupCmd)
}
