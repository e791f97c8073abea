package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dominant-strategies/go-progpow/cmd/utils"
	"github.com/dominant-strategies/go-progpow/common/constants"
	"github.com/dominant-strategies/go-progpow/log"
	"github.com/dominant-strategies/go-progpow/metrics_config"
)

var rootCmd = &cobra.Command{
	Use:               constants.APP_NAME,
	Short:             "computes and verifies progpow proof-of-work hashes",
	PersistentPreRunE: rootCmdPreRun,
	SilenceUsage:      true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		return err
	}
	return nil
}

func init() {
	for _, flag := range utils.GlobalFlags {
		utils.CreateAndBindFlag(flag, rootCmd)
	}
	for _, flag := range utils.EngineFlags {
		utils.CreateAndBindFlag(flag, rootCmd)
	}
}

func rootCmdPreRun(cmd *cobra.Command, args []string) error {
	// set logger inmediately after parsing cobra flags
	logLevel := cmd.Flag(utils.LogLevelFlag.Name).Value.String()
	configDir := cmd.Flag(utils.ConfigDirFlag.Name).Value.String()
	log.SetGlobalLogger(filepath.Join(configDir, constants.LOG_FILE_NAME), logLevel)

	// set config path to read config file
	viper.SetConfigFile(filepath.Join(configDir, constants.CONFIG_FILE_NAME))
	viper.SetConfigType(constants.CONFIG_FILE_TYPE)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	// load config from file and environment variables
	utils.InitConfig()
	// bind cobra flags to viper instance
	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("error binding flags: %s", err)
	}

	// Make sure the config dir exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return err
		}
	}

	// save config file if SAVE_CONFIG_FILE flag is set to true
	if viper.GetBool(utils.SaveConfigFlag.Name) {
		err := utils.SaveConfig()
		if err != nil {
			log.Global.WithField("error", err).Error("error saving config file. Skipping...")
		} else {
			log.Global.Debug("config file saved successfully")
		}
	}

	if viper.GetBool(utils.MetricsEnabledFlag.Name) {
		log.Global.Info("Starting metrics")
		metrics_config.EnableMetrics()
		metrics_config.StartProcessMetrics(viper.GetString(utils.MetricsAddrFlag.Name), viper.GetString(utils.DatasetDirFlag.Name))
	}
	log.Global.WithField("options", viper.AllSettings()).Debug("config options loaded")
	return nil
}
