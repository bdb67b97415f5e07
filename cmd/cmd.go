package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"trypie/config"
	"trypie/pkg/logging"
)

var configPath string

var RootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "shared expenses of a travel group",
	Long: `trypie keeps the shared expenses of a travel group: who paid, how each bill is split,
who still owes whom and which transfers settle the trip.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./trypie.yaml)")
	RootCmd.AddCommand(serveCommand())
	RootCmd.AddCommand(migrateCommand())
	RootCmd.AddCommand(balanceCommand())
	RootCmd.AddCommand(tokenCommand())
}

// loadConfig reads the configuration and installs the logger it asks for. flags maps
// config keys to command flags that override them when set.
func loadConfig(flags map[string]*pflag.Flag) (*config.Config, error) {
	v, err := config.NewViper(configPath)
	if err != nil {
		return nil, err
	}
	for key, flag := range flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log.Level)
	return cfg, nil
}

func Execute() error {
	return RootCmd.Execute()
}
