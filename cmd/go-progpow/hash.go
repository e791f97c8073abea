package main

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dominant-strategies/go-progpow/cmd/utils"
	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/consensus/progpow"
	"github.com/dominant-strategies/go-progpow/log"
)

var hashCmd = &cobra.Command{
	Use:   "hash <height> <header-hash> <nonce> [count]",
	Short: "computes the progpow digests of a header",
	Long: `computes the mix digest and final digest of a 32 byte header hash for
count consecutive nonces starting at nonce (default 1). Nonces may be given in
decimal or 0x prefixed hexadecimal. With --difficulty the digests are checked
against the corresponding target.`,
	Args:                       cobra.RangeArgs(3, 4),
	RunE:                       runHash,
	SilenceUsage:               true,
	SuggestionsMinimumDistance: 2,
	Example:                    `go-progpow hash 30049 0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f 0x123456789abcdef0 --pow-mode=test`,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	for _, flag := range utils.HashFlags {
		utils.CreateAndBindFlag(flag, hashCmd)
	}
}

// hashRow is a single evaluated nonce.
type hashRow struct {
	nonce  uint64
	result progpow.Result
	meets  bool
}

func runHash(cmd *cobra.Command, args []string) error {
	height, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid height %q: %w", args[0], err)
	}
	var header common.Hash
	if err := header.UnmarshalText([]byte(args[1])); err != nil {
		return fmt.Errorf("%w: %v", progpow.ErrInvalidHeaderLength, err)
	}
	nonce, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid nonce %q: %w", args[2], err)
	}
	count := uint64(1)
	if len(args) == 4 {
		if count, err = strconv.ParseUint(args[3], 0, 64); err != nil || count == 0 {
			return fmt.Errorf("invalid nonce count %q", args[3])
		}
	}
	difficulty, err := utils.Difficulty()
	if err != nil {
		return err
	}
	var target common.Hash
	if difficulty != nil {
		if target, err = progpow.TargetFromDifficulty(difficulty); err != nil {
			return err
		}
	}
	config, err := utils.EngineConfig()
	if err != nil {
		return err
	}
	engine := progpow.New(config, log.Global)
	defer engine.Close()

	rows, err := hashNonces(engine, header, height, nonce, count, viper.GetBool(utils.FullFlag.Name), config.Threads, difficulty, target)
	if err != nil {
		return err
	}
	renderHashes(rows, difficulty)
	return nil
}

// hashNonces evaluates count nonces on up to threads goroutines.
func hashNonces(engine *progpow.Progpow, header common.Hash, height, nonce, count uint64, full bool, threads int, difficulty *big.Int, target common.Hash) ([]hashRow, error) {
	rows := make([]hashRow, count)
	group := new(errgroup.Group)
	group.SetLimit(threads)
	for i := uint64(0); i < count; i++ {
		i := i
		group.Go(func() error {
			var (
				res progpow.Result
				err error
			)
			if full {
				res, err = engine.ComputePowFull(header, nonce+i, height, false)
			} else {
				res, err = engine.ComputePowLight(header, nonce+i, height)
			}
			if err != nil {
				return err
			}
			row := hashRow{nonce: nonce + i, result: res}
			if difficulty != nil {
				row.meets = progpow.MeetsTarget(res.Digest, target)
			}
			rows[i] = row
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func renderHashes(rows []hashRow, difficulty *big.Int) {
	table := tablewriter.NewWriter(os.Stdout)
	header := []string{"Nonce", "Mix digest", "Final digest"}
	if difficulty != nil {
		header = append(header, "Meets target")
	}
	table.SetHeader(header)
	for _, row := range rows {
		line := []string{
			fmt.Sprintf("%#016x", row.nonce),
			fmt.Sprintf("%#x", row.result.MixDigest),
			fmt.Sprintf("%#x", row.result.Digest),
		}
		if difficulty != nil {
			line = append(line, strconv.FormatBool(row.meets))
		}
		table.Append(line)
	}
	table.Render()
}
