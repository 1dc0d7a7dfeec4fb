package main

import (
	"fmt"
	"os"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/pkg/version"

	"github.com/spf13/cobra"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sessionkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", cnst.CommandName, version.Get())
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Print the stored state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.Context(), cmd.OutOrStdout(), configPath, args[0])
		},
	}

	rootCmd = &cobra.Command{
		Use:   cnst.CommandName,
		Short: "Session state and output cache server",
		Long:  `sessionkv serves session state and cached responses out of a versioned key-value store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.SessionKVYaml, "path to configuration file, like /etc/sessionkv/sessionkv.yaml")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
