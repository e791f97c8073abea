package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dominant-strategies/go-progpow/cmd/utils"
	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/consensus/progpow"
	"github.com/dominant-strategies/go-progpow/log"
)

var makeCacheCmd = &cobra.Command{
	Use:   "makecache <height> [dir]",
	Short: "generates a progpow verification cache",
	Long: `generates the verification cache of the epoch containing height and
writes it to dir, by default the --cache-dir directory.`,
	Args:         cobra.RangeArgs(1, 2),
	RunE:         runMakeCache,
	SilenceUsage: true,
	Example:      `go-progpow makecache 30000 /tmp/caches`,
}

var makeDagCmd = &cobra.Command{
	Use:   "makedag <height> [dir]",
	Short: "generates a progpow mining DAG",
	Long: `generates the full dataset of the epoch containing height and writes it
to dir, by default the --dag-dir directory. Interrupting the command stops the
generation and leaves no partial DAG behind.`,
	Args:         cobra.RangeArgs(1, 2),
	RunE:         runMakeDag,
	SilenceUsage: true,
	Example:      `go-progpow makedag 30000 /tmp/dags`,
}

func init() {
	rootCmd.AddCommand(makeCacheCmd)
	rootCmd.AddCommand(makeDagCmd)
}

// parseTarget reads the height and output directory arguments, falling back to
// the directory configured by flag.
func parseTarget(args []string, flag utils.Flag) (uint64, string, progpow.Mode, error) {
	height, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid height %q: %w", args[0], err)
	}
	dir := viper.GetString(flag.Name)
	if len(args) == 2 {
		dir = args[1]
	}
	if dir == "" {
		return 0, "", 0, fmt.Errorf("no output directory, set --%s", flag.Name)
	}
	var mode progpow.Mode
	if err := mode.UnmarshalText([]byte(viper.GetString(utils.PowModeFlag.Name))); err != nil {
		return 0, "", 0, err
	}
	return height, dir, mode, nil
}

func runMakeCache(cmd *cobra.Command, args []string) error {
	height, dir, mode, err := parseTarget(args, utils.CacheDirFlag)
	if err != nil {
		return err
	}
	log.Global.WithFields(log.Fields{
		"epoch": progpow.ForHeight(height).Epoch,
		"dir":   dir,
		"mode":  mode,
	}).Info("Generating progpow cache")
	return progpow.MakeCache(height, dir, mode, log.Global)
}

func runMakeDag(cmd *cobra.Command, args []string) error {
	height, dir, mode, err := parseTarget(args, utils.DatasetDirFlag)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		start  = time.Now()
		epoch  = progpow.ForHeight(height)
		logged int
		lock   sync.Mutex
	)
	log.Global.WithFields(log.Fields{
		"epoch": epoch.Epoch,
		"size":  common.StorageSize(epoch.DatasetSize),
		"dir":   dir,
		"mode":  mode,
	}).Info("Generating progpow DAG")

	progress := func(done, total uint64) {
		// Report every ten percent, the engine logs the rest at debug level.
		lock.Lock()
		defer lock.Unlock()
		if pct := int(done * 10 / total); pct > logged {
			logged = pct
			log.Global.WithFields(log.Fields{
				"percentage": pct * 10,
				"elapsed":    common.PrettyDuration(time.Since(start)),
			}).Info("Generating progpow DAG")
		}
	}
	if err := progpow.MakeDataset(ctx, height, dir, mode, progress, log.Global); err != nil {
		return err
	}
	log.Global.WithField("elapsed", common.PrettyDuration(time.Since(start))).Info("Generated progpow DAG")
	return nil
}
