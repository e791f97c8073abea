package progpow

import (
	"fmt"

	"github.com/dominant-strategies/go-progpow/common"
)

// EpochLength is the number of blocks sharing one cache and dataset.
const EpochLength = epochLength

// EpochContext describes the cache and dataset of a single epoch.
type EpochContext struct {
	Epoch       uint64
	CacheSize   uint64
	DatasetSize uint64
	Seed        common.Hash
}

// ForHeight returns the context of the epoch containing the block height.
func ForHeight(height uint64) EpochContext {
	return ForEpoch(height / epochLength)
}

// ForEpoch returns the context of an epoch, computing its seed from scratch.
func ForEpoch(epoch uint64) EpochContext {
	block := epoch*epochLength + 1
	return EpochContext{
		Epoch:       epoch,
		CacheSize:   cacheSize(block),
		DatasetSize: datasetSize(block),
		Seed:        common.BytesToHash(seedHash(block)),
	}
}

// Next returns the context of the following epoch, deriving its seed with a
// single hash of the current one.
func (c EpochContext) Next() EpochContext {
	block := (c.Epoch+1)*epochLength + 1
	return EpochContext{
		Epoch:       c.Epoch + 1,
		CacheSize:   cacheSize(block),
		DatasetSize: datasetSize(block),
		Seed:        nextSeedHash(c.Seed),
	}
}

// Covers reports whether the context belongs to the given epoch.
func (c EpochContext) Covers(epoch uint64) bool {
	return c.Epoch == epoch
}

// CoversHeight reports whether the block height falls into the context's epoch.
func (c EpochContext) CoversHeight(height uint64) bool {
	return c.Covers(height / epochLength)
}

// testSized shrinks the buffers to the sizes used in ModeTest.
func (c EpochContext) testSized() EpochContext {
	c.CacheSize = testCacheBytes
	c.DatasetSize = testDatasetBytes
	return c
}

func (c EpochContext) String() string {
	return fmt.Sprintf("epoch %d (cache %v, dataset %v, seed %s)", c.Epoch,
		common.StorageSize(c.CacheSize), common.StorageSize(c.DatasetSize), c.Seed.TerminalString())
}

// SeedHash returns the seed of the epoch containing the block height.
func SeedHash(height uint64) common.Hash {
	return common.BytesToHash(seedHash(height))
}
