package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/consensus/progpow"
)

var sizesCmd = &cobra.Command{
	Use:          "sizes [first-epoch] [count]",
	Short:        "prints the cache and DAG sizes of a range of epochs",
	Args:         cobra.MaximumNArgs(2),
	RunE:         runSizes,
	SilenceUsage: true,
	Example:      `go-progpow sizes 0 16`,
}

func init() {
	rootCmd.AddCommand(sizesCmd)
}

func runSizes(cmd *cobra.Command, args []string) error {
	first, count := uint64(0), uint64(10)
	if len(args) > 0 {
		var err error
		if first, err = strconv.ParseUint(args[0], 0, 64); err != nil {
			return fmt.Errorf("invalid epoch %q: %w", args[0], err)
		}
	}
	if len(args) > 1 {
		var err error
		if count, err = strconv.ParseUint(args[1], 0, 64); err != nil {
			return fmt.Errorf("invalid count %q: %w", args[1], err)
		}
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Epoch", "First block", "Cache", "DAG", "Seed"})

	ctx := progpow.ForEpoch(first)
	for i := uint64(0); i < count; i++ {
		table.Append([]string{
			strconv.FormatUint(ctx.Epoch, 10),
			strconv.FormatUint(ctx.Epoch*progpow.EpochLength, 10),
			fmt.Sprintf("%d (%s)", ctx.CacheSize, common.StorageSize(ctx.CacheSize).TerminalString()),
			fmt.Sprintf("%d (%s)", ctx.DatasetSize, common.StorageSize(ctx.DatasetSize).TerminalString()),
			ctx.Seed.Hex(),
		})
		ctx = ctx.Next()
	}
	table.Render()
	return nil
}
