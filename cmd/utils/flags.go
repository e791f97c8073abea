package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dominant-strategies/go-progpow/common/constants"
	"github.com/dominant-strategies/go-progpow/consensus/progpow"
	"github.com/dominant-strategies/go-progpow/log"
	"github.com/dominant-strategies/go-progpow/metrics_config"
)

var GlobalFlags = []Flag{
	ConfigDirFlag,
	LogLevelFlag,
	SaveConfigFlag,
	MetricsEnabledFlag,
	MetricsAddrFlag,
}

var EngineFlags = []Flag{
	PowModeFlag,
	CacheDirFlag,
	CachesInMemFlag,
	CachesOnDiskFlag,
	CachesLockMmapFlag,
	DatasetDirFlag,
	DatasetsInMemFlag,
	DatasetsOnDiskFlag,
	DatasetsLockMmapFlag,
	LightItemCacheFlag,
	HashCacheSizeFlag,
	ThreadsFlag,
}

var HashFlags = []Flag{
	FullFlag,
	DifficultyFlag,
}

var (
	// ****************************************
	// **                                    **
	// **         GLOBAL FLAGS               **
	// **                                    **
	// ****************************************
	ConfigDirFlag = Flag{
		Name:         "config-dir",
		Abbreviation: "c",
		Value:        xdg.ConfigHome + "/" + constants.APP_NAME + "/",
		Usage:        "config directory" + generateEnvDoc("config-dir"),
	}

	LogLevelFlag = Flag{
		Name:         "log-level",
		Abbreviation: "l",
		Value:        "info",
		Usage:        "log level (trace, debug, info, warn, error, fatal, panic)" + generateEnvDoc("log-level"),
	}

	SaveConfigFlag = Flag{
		Name:         "save-config",
		Abbreviation: "S",
		Value:        false,
		Usage:        "save/update config file with current config parameters" + generateEnvDoc("save-config"),
	}

	MetricsEnabledFlag = Flag{
		Name:  "metrics",
		Value: false,
		Usage: "serve prometheus metrics" + generateEnvDoc("metrics"),
	}

	MetricsAddrFlag = Flag{
		Name:  "metrics-addr",
		Value: metrics_config.DefaultAddress,
		Usage: "address of the metrics endpoint" + generateEnvDoc("metrics-addr"),
	}

	// ****************************************
	// **                                    **
	// **         ENGINE FLAGS               **
	// **                                    **
	// ****************************************
	PowModeFlag = Flag{
		Name:  "pow-mode",
		Value: progpow.ModeNormal.String(),
		Usage: "progpow mode (normal, test)" + generateEnvDoc("pow-mode"),
	}

	CacheDirFlag = Flag{
		Name:  "cache-dir",
		Value: xdg.CacheHome + "/" + constants.APP_NAME + "/" + constants.DAG_DIR_NAME,
		Usage: "directory to store the verification caches" + generateEnvDoc("cache-dir"),
	}

	CachesInMemFlag = Flag{
		Name:  "caches-in-mem",
		Value: progpow.DefaultConfig.CachesInMem,
		Usage: "number of recent verification caches to keep in memory" + generateEnvDoc("caches-in-mem"),
	}

	CachesOnDiskFlag = Flag{
		Name:  "caches-on-disk",
		Value: progpow.DefaultConfig.CachesOnDisk,
		Usage: "number of recent verification caches to keep on disk" + generateEnvDoc("caches-on-disk"),
	}

	CachesLockMmapFlag = Flag{
		Name:  "caches-lockmmap",
		Value: false,
		Usage: "lock memory maps of recent verification caches" + generateEnvDoc("caches-lockmmap"),
	}

	DatasetDirFlag = Flag{
		Name:  "dag-dir",
		Value: xdg.CacheHome + "/" + constants.APP_NAME + "/" + constants.DAG_DIR_NAME,
		Usage: "directory to store the full datasets" + generateEnvDoc("dag-dir"),
	}

	DatasetsInMemFlag = Flag{
		Name:  "dags-in-mem",
		Value: progpow.DefaultConfig.DatasetsInMem,
		Usage: "number of recent full datasets to keep in memory" + generateEnvDoc("dags-in-mem"),
	}

	DatasetsOnDiskFlag = Flag{
		Name:  "dags-on-disk",
		Value: progpow.DefaultConfig.DatasetsOnDisk,
		Usage: "number of recent full datasets to keep on disk" + generateEnvDoc("dags-on-disk"),
	}

	DatasetsLockMmapFlag = Flag{
		Name:  "dags-lockmmap",
		Value: false,
		Usage: "lock memory maps for recent full datasets" + generateEnvDoc("dags-lockmmap"),
	}

	LightItemCacheFlag = Flag{
		Name:  "light-item-cache",
		Value: progpow.DefaultConfig.LightItemCacheBytes / (1024 * 1024),
		Usage: "megabytes of dataset items memoised per verification cache (0 disables)" + generateEnvDoc("light-item-cache"),
	}

	HashCacheSizeFlag = Flag{
		Name:  "hash-cache",
		Value: progpow.DefaultConfig.HashCacheSize,
		Usage: "number of recent hash results to keep" + generateEnvDoc("hash-cache"),
	}

	ThreadsFlag = Flag{
		Name:         "threads",
		Abbreviation: "t",
		Value:        1,
		Usage:        "number of nonces hashed concurrently" + generateEnvDoc("threads"),
	}

	// ****************************************
	// **                                    **
	// **         HASH FLAGS                 **
	// **                                    **
	// ****************************************
	FullFlag = Flag{
		Name:  "full",
		Value: false,
		Usage: "hash against the full dataset instead of the verification cache" + generateEnvDoc("full"),
	}

	DifficultyFlag = Flag{
		Name:  "difficulty",
		Value: new(big.Int),
		Usage: "report whether the digest meets this difficulty (0 skips the check)" + generateEnvDoc("difficulty"),
	}
)

func CreateAndBindFlag(flag Flag, cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	addFlag(flag, flags)
	viper.BindPFlag(flag.GetName(), flags.Lookup(flag.GetName()))
}

// addFlag defines flag on the set with the pflag type matching its default.
func addFlag(flag Flag, flags *pflag.FlagSet) {
	switch val := flag.Value.(type) {
	case string:
		flags.StringP(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case bool:
		flags.BoolP(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case []string:
		flags.StringSliceP(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case time.Duration:
		flags.DurationP(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case int:
		flags.IntP(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case int64:
		flags.Int64P(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case uint64:
		flags.Uint64P(flag.GetName(), flag.GetAbbreviation(), val, flag.GetUsage())
	case *big.Int:
		flags.VarP(newBigIntValue(new(big.Int).Set(val)), flag.GetName(), flag.GetAbbreviation(), flag.GetUsage())
	default:
		log.Error("Flag type not supported: " + flag.GetName() + ", " + fmt.Sprintf("%T", val))
	}
}

// helper function that given a cobra flag name, returns the corresponding
// help legend for the equivalent environment variable
func generateEnvDoc(flag string) string {
	envVar := constants.ENV_PREFIX + "_" + strings.ReplaceAll(strings.ToUpper(flag), "-", "_")
	return fmt.Sprintf(" [%s]", envVar)
}
