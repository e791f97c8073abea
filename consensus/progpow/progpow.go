package progpow

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	lru2 "github.com/hashicorp/golang-lru/v2"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

// Mode defines the type and amount of PoW verification a progpow engine makes.
type Mode uint

const (
	ModeNormal Mode = iota
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeTest:
		return "test"
	}
	return fmt.Sprintf("mode(%d)", uint(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeNormal, ModeTest:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("unknown progpow mode %d", uint(m))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "normal", "":
		*m = ModeNormal
	case "test":
		*m = ModeTest
	default:
		return fmt.Errorf("unknown progpow mode %q", text)
	}
	return nil
}

// Config are the configuration parameters of the progpow.
type Config struct {
	PowMode Mode `toml:"PowMode"`

	CacheDir       string `toml:"CacheDir"`
	CachesInMem    int    `toml:"CachesInMem"`
	CachesOnDisk   int    `toml:"CachesOnDisk"`
	CachesLockMmap bool   `toml:"CachesLockMmap"`

	DatasetDir       string `toml:"DatasetDir"`
	DatasetsInMem    int    `toml:"DatasetsInMem"`
	DatasetsOnDisk   int    `toml:"DatasetsOnDisk"`
	DatasetsLockMmap bool   `toml:"DatasetsLockMmap"`

	// LightItemCacheBytes bounds the memo of dataset items recomputed by the
	// light path, per cache. Zero disables it.
	LightItemCacheBytes int `toml:"LightItemCacheBytes"`
	// HashCacheSize is the number of recent results kept by the engine.
	HashCacheSize int `toml:"HashCacheSize"`
	// Threads is the number of concurrent verifications the CLI runs.
	Threads int `toml:"Threads"`

	Log *log.Logger `toml:"-"`
}

// DefaultConfig contains default settings for use on the main net.
var DefaultConfig = Config{
	PowMode:             ModeNormal,
	CachesInMem:         2,
	CachesOnDisk:        3,
	CachesLockMmap:      false,
	DatasetsInMem:       1,
	DatasetsOnDisk:      2,
	DatasetsLockMmap:    false,
	LightItemCacheBytes: 32 * 1024 * 1024,
	HashCacheSize:       1024,
}

// hashKey identifies a single evaluation in the result cache.
type hashKey struct {
	header common.Hash
	nonce  uint64
	height uint64
}

// Progpow is a proof-of-work hash engine owning the per epoch verification
// caches and mining datasets.
type Progpow struct {
	config Config

	caches   *lru // In memory caches to avoid regenerating too often
	datasets *lru // In memory datasets to avoid regenerating too often

	results *lru2.Cache[hashKey, Result] // Recently computed results
	store   *Store                       // Dag store for caches and datasets on disk

	lock       sync.Mutex     // Guards closed and the background counter against Close
	closed     bool           // Set by Close, refuses new background generation
	background sync.WaitGroup // Tracks caches and datasets generated in the background
	closeOnce  sync.Once      // Ensures Close is only run once

	logger *log.Logger
}

// New creates a full sized progpow PoW scheme.
func New(config Config, logger *log.Logger) *Progpow {
	if logger == nil {
		logger = config.Log
	}
	if logger == nil {
		logger = log.NewNullLogger()
	}
	if config.CachesInMem <= 0 {
		logger.WithField("requested", config.CachesInMem).Warn("Invalid progpow caches in memory, defaulting to 1")
		config.CachesInMem = 1
	}
	if config.DatasetsInMem <= 0 {
		config.DatasetsInMem = 1
	}
	if config.CacheDir != "" && config.CachesOnDisk > 0 {
		logger.WithFields(log.Fields{
			"dir":   config.CacheDir,
			"count": config.CachesOnDisk,
		}).Info("Disk storage enabled for progpow caches")
	}
	if config.DatasetDir != "" && config.DatasetsOnDisk > 0 {
		logger.WithFields(log.Fields{
			"dir":   config.DatasetDir,
			"count": config.DatasetsOnDisk,
		}).Info("Disk storage enabled for progpow DAGs")
	}
	progpow := &Progpow{
		config:   config,
		caches:   newlru("cache", config.CachesInMem, newCache, logger),
		datasets: newlru("dataset", config.DatasetsInMem, newDataset, logger),
		store:    NewStore(nil, logger),
		logger:   logger,
	}
	if config.HashCacheSize > 0 {
		progpow.results, _ = lru2.New[hashKey, Result](config.HashCacheSize)
	}
	return progpow
}

// NewTester creates a small sized progpow PoW scheme useful only for testing
// purposes.
func NewTester() *Progpow {
	return New(Config{PowMode: ModeTest, HashCacheSize: 64}, log.NewNullLogger())
}

// Config returns the configuration of the engine.
func (progpow *Progpow) Config() Config {
	return progpow.config
}

// lru tracks caches or datasets by their last use time, keeping at most N of them.
type lru struct {
	what string
	new  func(epoch uint64) interface{}
	mu   sync.Mutex
	// Items are kept in a LRU cache, but there is a special case:
	// We always keep an item for (highest seen epoch) + 1 as the 'future item'.
	cache      *simplelru.LRU
	future     uint64
	futureItem interface{}

	logger *log.Logger
}

// newlru create a new least-recently-used cache for either the verification caches
// or the mining datasets.
func newlru(what string, maxItems int, new func(epoch uint64) interface{}, logger *log.Logger) *lru {
	if maxItems <= 0 {
		maxItems = 1
	}
	cache, _ := simplelru.NewLRU(maxItems, func(key, value interface{}) {
		logger.WithField("epoch", key).Trace("Evicted progpow " + what)
	})
	return &lru{what: what, new: new, cache: cache, logger: logger}
}

// get retrieves or creates an item for the given epoch. The first return value is always
// non-nil. The second return value is non-nil if lru thinks that an item will be useful in
// the near future.
func (lru *lru) get(epoch uint64) (item, future interface{}) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	// Get or create the item for the requested epoch.
	item, ok := lru.cache.Get(epoch)
	if !ok {
		if lru.future > 0 && lru.future == epoch {
			item = lru.futureItem
		} else {
			lru.logger.WithField("epoch", epoch).Trace("Requiring new progpow " + lru.what)
			item = lru.new(epoch)
		}
		lru.cache.Add(epoch, item)
	}
	// Update the 'future item' if epoch is larger than previously seen.
	if epoch < maxEpoch-1 && lru.future < epoch+1 {
		lru.logger.WithField("epoch", epoch+1).Trace("Requiring new future progpow " + lru.what)
		future = lru.new(epoch + 1)
		lru.future = epoch + 1
		lru.futureItem = future
	}
	return item, future
}

// remove drops the item of an epoch, including a matching future item, unless
// it has already been replaced by another one.
func (lru *lru) remove(epoch uint64, item interface{}) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if current, ok := lru.cache.Peek(epoch); ok && current == item {
		lru.cache.Remove(epoch)
	}
	if lru.future == epoch && lru.futureItem == item {
		lru.future, lru.futureItem = 0, nil
	}
}

// purge drops every item, including the future one.
func (lru *lru) purge() {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.cache.Purge()
	lru.future, lru.futureItem = 0, nil
}

// cache tries to retrieve a verification cache for the specified block number
// by first checking against a list of in-memory caches, then against caches
// stored on disk, and finally generating one if none can be found.
func (progpow *Progpow) cache(block uint64) (*Cache, error) {
	epoch := block / epochLength
	currentI, futureI := progpow.caches.get(epoch)
	current := currentI.(*Cache)

	// Wait for generation finish. A failed cache is forgotten so the next
	// request generates it again.
	if err := current.generate(&progpow.config, progpow.store, progpow.logger); err != nil {
		progpow.caches.remove(epoch, current)
		return nil, err
	}
	// If we need a new future cache, now's a good time to regenerate it.
	if futureI != nil {
		future := futureI.(*Cache)
		progpow.goBackground(func() {
			future.generate(&progpow.config, progpow.store, progpow.logger)
		})
	}
	return current, nil
}

// dataset tries to retrieve a mining dataset for the specified block number
// by first checking against a list of in-memory datasets, then against DAGs
// stored on disk, and finally generating one if none can be found.
//
// If async is specified, not only the future but the current DAG is also
// generated on a background thread; the returned dataset is then only usable
// once generated() reports true.
func (progpow *Progpow) dataset(block uint64, async bool) (*Dataset, error) {
	// Retrieve the requested progpow dataset
	epoch := block / epochLength
	currentI, futureI := progpow.datasets.get(epoch)
	current := currentI.(*Dataset)

	generate := func(d *Dataset, epoch uint64) error {
		cache, err := progpow.epochCache(epoch)
		if err == nil {
			err = d.generate(context.Background(), &progpow.config, cache, progpow.store, nil, progpow.logger)
		}
		if err != nil {
			progpow.datasets.remove(epoch, d)
		}
		return err
	}
	// If async is specified, generate everything in a background thread
	if async && !current.generated() {
		started := progpow.goBackground(func() {
			if err := generate(current, epoch); err != nil {
				progpow.logger.WithField("err", err).Error("Failed to generate progpow dataset")
			}
			if futureI != nil {
				generate(futureI.(*Dataset), epoch+1)
			}
		})
		if started {
			return current, nil
		}
	}
	// Either blocking generation was requested, or already done
	if err := generate(current, epoch); err != nil {
		return nil, err
	}
	if futureI != nil {
		progpow.goBackground(func() {
			generate(futureI.(*Dataset), epoch+1)
		})
	}
	return current, nil
}

// epochCache returns the generated cache of an epoch without scheduling its
// successor.
func (progpow *Progpow) epochCache(epoch uint64) (*Cache, error) {
	item, _ := progpow.caches.get(epoch)
	cache := item.(*Cache)
	if err := cache.generate(&progpow.config, progpow.store, progpow.logger); err != nil {
		progpow.caches.remove(epoch, cache)
		return nil, err
	}
	return cache, nil
}

// ComputePowLight evaluates progpow on the verification cache of the block's
// epoch.
func (progpow *Progpow) ComputePowLight(headerHash common.Hash, nonce uint64, height uint64) (Result, error) {
	key := hashKey{header: headerHash, nonce: nonce, height: height}
	if res, ok := progpow.lookupResult(key); ok {
		return res, nil
	}
	cache, err := progpow.cache(height)
	if err != nil {
		return Result{}, err
	}
	res, err := LightCompute(cache, headerHash[:], nonce, height)
	if err != nil {
		return Result{}, err
	}
	progpow.storeResult(key, res)
	return res, nil
}

// ComputePowFull evaluates progpow on the full dataset of the block's epoch,
// generating it first if needed. While an asynchronously requested dataset is
// still being generated the light path is used instead.
func (progpow *Progpow) ComputePowFull(headerHash common.Hash, nonce uint64, height uint64, async bool) (Result, error) {
	key := hashKey{header: headerHash, nonce: nonce, height: height}
	if res, ok := progpow.lookupResult(key); ok {
		return res, nil
	}
	dataset, err := progpow.dataset(height, async)
	if err != nil {
		return Result{}, err
	}
	if !dataset.generated() {
		return progpow.ComputePowLight(headerHash, nonce, height)
	}
	if dataset.err != nil {
		progpow.datasets.remove(height/epochLength, dataset)
		return Result{}, dataset.err
	}
	res, err := FullCompute(dataset, headerHash[:], nonce, height)
	if err != nil {
		return Result{}, err
	}
	progpow.storeResult(key, res)
	return res, nil
}

func (progpow *Progpow) lookupResult(key hashKey) (Result, bool) {
	if progpow.results == nil {
		return Result{}, false
	}
	res, ok := progpow.results.Get(key)
	if ok {
		hashCacheCounter.WithLabelValues("hit").Inc()
	} else {
		hashCacheCounter.WithLabelValues("miss").Inc()
	}
	return res, ok
}

func (progpow *Progpow) storeResult(key hashKey, res Result) {
	if progpow.results != nil {
		progpow.results.Add(key, res)
	}
}

// goBackground runs fn on its own goroutine, tracked until Close. Once the
// engine is closed fn is dropped and false is returned.
func (progpow *Progpow) goBackground(fn func()) bool {
	progpow.lock.Lock()
	defer progpow.lock.Unlock()

	if progpow.closed {
		return false
	}
	progpow.background.Add(1)
	go func() {
		defer progpow.background.Done()
		fn()
	}()
	return true
}

// Close waits for background generation and drops the in memory caches and
// datasets. Mapped buffers are released once no computation references them
// anymore.
func (progpow *Progpow) Close() error {
	progpow.closeOnce.Do(func() {
		progpow.lock.Lock()
		progpow.closed = true
		progpow.lock.Unlock()

		progpow.background.Wait()

		progpow.caches.purge()
		progpow.datasets.purge()
		if progpow.results != nil {
			progpow.results.Purge()
		}
	})
	return nil
}
