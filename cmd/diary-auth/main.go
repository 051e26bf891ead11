package main

import (
	"os"

	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func main() {
	Execute()
}

var cfg *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "diary-auth",
	Short: "Authentication server and client for the simple diary app",
	Long: `diary-auth runs the Google OAuth exchange handler for the simple diary app
and drives the client-side session manager from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}

		loaded, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		return logger.InitLogger(&cfg.Logging)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Info.Println(config.GetVersionInfo())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer func() { _ = logger.Sync() }()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default ./config.yaml or /etc/diary-auth/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (console, json)")
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(versionCmd)
}
