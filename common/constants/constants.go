package constants

const (
	APP_NAME = "go-progpow"
	// prefix used to read config parameters from environment variables
	ENV_PREFIX = "GO_PROGPOW"
	// config file name
	CONFIG_FILE_NAME = "config.toml"
	// config file type
	CONFIG_FILE_TYPE = "toml"
	// directory name, below the xdg cache home, holding cache and DAG dumps
	DAG_DIR_NAME = "dag"
	// log file name written by the command line tool
	LOG_FILE_NAME = "go-progpow.log"
)
