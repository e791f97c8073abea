package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/dominant-strategies/go-progpow/common/constants"
	"github.com/dominant-strategies/go-progpow/consensus/progpow"
	"github.com/dominant-strategies/go-progpow/log"
)

// InitConfig initializes the viper config instance ensuring that environment variables
// take precedence over config file parameters.
// Environment variables should be prefixed with the application name (e.g. GO_PROGPOW_LOG_LEVEL).
// It panics if an error occurs while reading the config file.
func InitConfig() {
	// read in config file and merge with defaults
	log.Global.Infof("Loading config from file: %s", viper.ConfigFileUsed())
	err := viper.ReadInConfig()
	if err != nil {
		// if error is type ConfigFileNotFoundError or fs.PathError, ignore error
		if _, ok := err.(*fs.PathError); ok || errors.Is(err, viper.ConfigFileNotFoundError{}) {
			log.Global.Warnf("Config file not found: %s", viper.ConfigFileUsed())
		} else {
			log.Global.Errorf("Error reading config file: %s", err)
			// config file was found but another error was produced. Cannot continue
			panic(err)
		}
	}

	log.Global.Infof("Loading config from environment variables with prefix: '%s_'", constants.ENV_PREFIX)
	viper.SetEnvPrefix(constants.ENV_PREFIX)
	viper.AutomaticEnv()
}

// SaveConfig writes the current viper settings to the config file in use.
func SaveConfig() error {
	path := viper.ConfigFileUsed()
	if path == "" {
		return errors.New("no config file set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return viper.WriteConfigAs(path)
}

// EngineConfig assembles the progpow engine configuration from the bound
// flags, the environment and the config file.
func EngineConfig() (progpow.Config, error) {
	config := progpow.DefaultConfig
	if err := config.PowMode.UnmarshalText([]byte(viper.GetString(PowModeFlag.Name))); err != nil {
		return progpow.Config{}, err
	}
	config.CacheDir = viper.GetString(CacheDirFlag.Name)
	config.CachesInMem = viper.GetInt(CachesInMemFlag.Name)
	config.CachesOnDisk = viper.GetInt(CachesOnDiskFlag.Name)
	config.CachesLockMmap = viper.GetBool(CachesLockMmapFlag.Name)
	config.DatasetDir = viper.GetString(DatasetDirFlag.Name)
	config.DatasetsInMem = viper.GetInt(DatasetsInMemFlag.Name)
	config.DatasetsOnDisk = viper.GetInt(DatasetsOnDiskFlag.Name)
	config.DatasetsLockMmap = viper.GetBool(DatasetsLockMmapFlag.Name)
	config.LightItemCacheBytes = viper.GetInt(LightItemCacheFlag.Name) * 1024 * 1024
	config.HashCacheSize = viper.GetInt(HashCacheSizeFlag.Name)
	config.Threads = viper.GetInt(ThreadsFlag.Name)
	if config.Threads <= 0 {
		config.Threads = 1
	}
	return config, nil
}

// Difficulty returns the difficulty requested on the command line, nil if no
// target check was asked for.
func Difficulty() (*big.Int, error) {
	text := viper.GetString(DifficultyFlag.Name)
	if text == "" {
		return nil, nil
	}
	difficulty, ok := new(big.Int).SetString(text, 0)
	if !ok {
		return nil, fmt.Errorf("invalid difficulty %q", text)
	}
	if difficulty.Sign() == 0 {
		return nil, nil
	}
	return difficulty, nil
}

// MarshalEngineConfig renders an engine configuration as TOML.
func MarshalEngineConfig(config progpow.Config) ([]byte, error) {
	return toml.Marshal(config)
}

// WriteDefaultConfigFile writes the current value of every engine and metrics
// flag to configDir/fileName, refusing to overwrite an existing file.
func WriteDefaultConfigFile(configDir string, fileName string) error {
	path := filepath.Join(configDir, fileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	settings := make(map[string]interface{})
	for _, flag := range append([]Flag{LogLevelFlag, MetricsEnabledFlag, MetricsAddrFlag}, EngineFlags...) {
		settings[flag.GetName()] = viper.Get(flag.GetName())
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
