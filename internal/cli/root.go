// Package cli implements the seedctl CLI commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudseed-io/seedctl/internal/logging"

	// Import state backends to register them via init()
	_ "github.com/cloudseed-io/seedctl/pkg/state/backend/azurerm"
	_ "github.com/cloudseed-io/seedctl/pkg/state/backend/gcs"
	_ "github.com/cloudseed-io/seedctl/pkg/state/backend/local"
	_ "github.com/cloudseed-io/seedctl/pkg/state/backend/s3"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "seedctl",
	Short: "Provision dependency-ordered cloud resources from declarations",
	Long: `seedctl applies declarative resource files against pluggable drivers.

Resources declare their attributes and reference each other's outputs;
seedctl orders them by dependency, applies independent resources in
parallel, and records every run so partial failures can be retried.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.seedctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "local", "Run record backend type (local, s3, gcs, azurerm)")
	rootCmd.PersistentFlags().StringArray("backend-config", nil, "Backend configuration (key=value)")

	// Bind to viper
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.SetEnvPrefix("SEEDCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	logging.Init(logLevel)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.seedctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}
