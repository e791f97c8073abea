package progpow

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

// Result is the outcome of a single progpow evaluation. Success reports that
// the computation ran; whether the digest meets a target is a separate check.
type Result struct {
	MixDigest common.Hash
	Digest    common.Hash
	Success   bool
}

// CacheSize returns the size of the verification cache for the block height.
func CacheSize(height uint64) uint64 {
	return cacheSize(height)
}

// DatasetSize returns the size of the full dataset for the block height.
func DatasetSize(height uint64) uint64 {
	return datasetSize(height)
}

// BuildCache generates the in memory verification cache of the epoch
// containing the block height.
func BuildCache(height uint64, logger *log.Logger) (*Cache, error) {
	return buildCache(height, &Config{PowMode: ModeNormal}, logger)
}

func buildCache(height uint64, config *Config, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	c := newCache(height / epochLength).(*Cache)
	if err := c.generate(config, NewStore(nil, logger), logger); err != nil {
		return nil, err
	}
	return c, nil
}

// BuildDataset generates the full dataset of the epoch containing the block
// height from its cache. With a non empty dir the dataset is loaded from or
// persisted to a dump in that directory. Cancelling the context stops the
// generation between items.
func BuildDataset(ctx context.Context, height uint64, cache *Cache, dir string, progress ProgressFunc, logger *log.Logger) (*Dataset, error) {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	config := &Config{DatasetDir: dir}
	d := newDataset(height / epochLength).(*Dataset)
	if err := d.generate(ctx, config, cache, NewStore(nil, logger), progress, logger); err != nil {
		return nil, err
	}
	return d, nil
}

// MakeCache generates the verification cache of the epoch containing the block
// height and persists it in dir.
func MakeCache(height uint64, dir string, mode Mode, logger *log.Logger) error {
	c, err := buildCache(height, &Config{PowMode: mode, CacheDir: dir}, logger)
	if err != nil {
		return err
	}
	return c.Close()
}

// MakeDataset generates the full dataset of the epoch containing the block
// height and persists it in dir.
func MakeDataset(ctx context.Context, height uint64, dir string, mode Mode, progress ProgressFunc, logger *log.Logger) error {
	cache, err := buildCache(height, &Config{PowMode: mode}, logger)
	if err != nil {
		return err
	}
	d, err := BuildDataset(ctx, height, cache, dir, progress, logger)
	if err != nil {
		return err
	}
	return d.Close()
}

func checkInput(headerHash []byte, ctx EpochContext, height uint64) error {
	if len(headerHash) != common.HashLength {
		return fmt.Errorf("%w: have %d", ErrInvalidHeaderLength, len(headerHash))
	}
	if !ctx.CoversHeight(height) {
		return fmt.Errorf("%w: block %d, epoch %d", ErrEpochMismatch, height, ctx.Epoch)
	}
	return nil
}

// LightCompute evaluates progpow for a header hash and nonce using only the
// verification cache.
func LightCompute(cache *Cache, headerHash []byte, nonce uint64, height uint64) (Result, error) {
	if err := checkInput(headerHash, cache.ctx, height); err != nil {
		return Result{}, err
	}
	if cache.cache == nil {
		return Result{}, ErrReleased
	}
	mix, digest := progpowLight(cache.ctx.DatasetSize, cache.cache, headerHash, nonce, height, cache.cDag, cache.memo)

	// Caches are unmapped in a finalizer. Ensure that the cache stays alive
	// until after the call to progpowLight so it's not unmapped while being used.
	runtime.KeepAlive(cache)

	hashCounter.WithLabelValues("light").Inc()
	return Result{
		MixDigest: common.BytesToHash(mix),
		Digest:    common.BytesToHash(digest),
		Success:   true,
	}, nil
}

// FullCompute evaluates progpow for a header hash and nonce against the full
// dataset.
func FullCompute(dataset *Dataset, headerHash []byte, nonce uint64, height uint64) (Result, error) {
	if err := checkInput(headerHash, dataset.ctx, height); err != nil {
		return Result{}, err
	}
	if dataset.dataset == nil {
		return Result{}, ErrReleased
	}
	mix, digest := progpowFull(dataset.dataset, headerHash, nonce, height)

	// Datasets are unmapped in a finalizer. Ensure that the dataset stays live
	// during the call to progpowFull so it's not unmapped while being used.
	runtime.KeepAlive(dataset)

	hashCounter.WithLabelValues("full").Inc()
	return Result{
		MixDigest: common.BytesToHash(mix),
		Digest:    common.BytesToHash(digest),
		Success:   true,
	}, nil
}
