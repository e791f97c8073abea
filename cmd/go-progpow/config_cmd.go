package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dominant-strategies/go-progpow/cmd/utils"
	"github.com/dominant-strategies/go-progpow/common/constants"
	"github.com/dominant-strategies/go-progpow/log"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "creates the default config file",
	Long: `creates the default config file in the location specified by the --config-dir flag.
The default config file will contain all the default values for the flags.
Any flags passed in the command line here will also overwrite the default values in the config file.`,
	RunE:                       runConfig,
	SilenceUsage:               true,
	SuggestionsMinimumDistance: 2,
	Example:                    `go-progpow config --dags-on-disk=1`,
}

var dumpConfigCmd = &cobra.Command{
	Use:          "dumpconfig",
	Short:        "prints the resolved engine configuration as TOML",
	RunE:         runDumpConfig,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dumpConfigCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	// Make sure configDir is a valid directory using path/filepath
	configDir := filepath.Clean(cmd.Flag(utils.ConfigDirFlag.Name).Value.String())

	if err := utils.WriteDefaultConfigFile(configDir, constants.CONFIG_FILE_NAME); err != nil {
		return err
	}
	log.Global.WithField("path", filepath.Join(configDir, constants.CONFIG_FILE_NAME)).Info("Initialized new config file.")
	return nil
}

func runDumpConfig(cmd *cobra.Command, args []string) error {
	config, err := utils.EngineConfig()
	if err != nil {
		return err
	}
	data, err := utils.MarshalEngineConfig(config)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(os.Stdout, string(data))
	return err
}
