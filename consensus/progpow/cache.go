package progpow

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/dominant-strategies/go-progpow/log"
)

// itemMemo remembers dataset items derived on the light path.
type itemMemo interface {
	get(index uint32, dest []uint32) bool
	set(index uint32, item []uint32)
}

// fastItemMemo keeps derived items in a fastcache bounded by size.
type fastItemMemo struct {
	items *fastcache.Cache
}

func newItemMemo(maxBytes int) itemMemo {
	if maxBytes <= 0 {
		return nil
	}
	return &fastItemMemo{items: fastcache.New(maxBytes)}
}

func (m *fastItemMemo) get(index uint32, dest []uint32) bool {
	var (
		key [4]byte
		buf [hashBytes]byte
	)
	binary.LittleEndian.PutUint32(key[:], index)
	enc := m.items.Get(buf[:0], key[:])
	if len(enc) != hashBytes {
		return false
	}
	for i := range dest[:hashWords] {
		dest[i] = binary.LittleEndian.Uint32(enc[i*4:])
	}
	return true
}

func (m *fastItemMemo) set(index uint32, item []uint32) {
	var (
		key [4]byte
		enc [hashBytes]byte
	)
	binary.LittleEndian.PutUint32(key[:], index)
	for i, word := range item[:hashWords] {
		binary.LittleEndian.PutUint32(enc[i*4:], word)
	}
	m.items.Set(key[:], enc[:])
}

// Cache wraps a progpow verification cache with some metadata to allow easier
// concurrent use. Once generated it is immutable.
type Cache struct {
	ctx   EpochContext // Epoch for which this cache is relevant
	dump  MappedFile   // Memory mapped dump backing the cache, nil if in memory
	cache []uint32     // The actual cache data content (may be memory mapped)
	cDag  []uint32     // The cached region of the dataset read by progpow
	memo  itemMemo     // Optional memo of light path dataset items
	once  sync.Once    // Ensures the cache is generated only once
	err   error        // Generation failure, set once
}

// newCache creates a new progpow verification cache and returns it as a plain Go
// interface to be usable in an LRU cache.
func newCache(epoch uint64) interface{} {
	return &Cache{ctx: EpochContext{Epoch: epoch}}
}

// Context returns the epoch parameters of the cache.
func (c *Cache) Context() EpochContext { return c.ctx }

// Epoch returns the epoch the cache belongs to.
func (c *Cache) Epoch() uint64 { return c.ctx.Epoch }

// generate ensures that the cache content is generated before use.
func (c *Cache) generate(config *Config, store *Store, logger *log.Logger) error {
	c.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(log.Fields{
					"error":      r,
					"stacktrace": string(debug.Stack()),
				}).Error("Progpow cache generation panicked")
				c.err = fmt.Errorf("progpow cache generation panicked: %v", r)
			}
		}()
		c.err = c.build(config, store, logger)
	})
	return c.err
}

func (c *Cache) build(config *Config, store *Store, logger *log.Logger) error {
	ctx := ForEpoch(c.ctx.Epoch)
	if config.PowMode == ModeTest {
		ctx = ctx.testSized()
	}
	c.ctx = ctx
	c.memo = newItemMemo(config.LightItemCacheBytes)
	c.cDag = make([]uint32, progpowCacheWords)

	// If we don't store anything on disk, generate and return.
	if config.CacheDir == "" {
		if err := ensureMemory("cache", ctx.CacheSize, logger); err != nil {
			return err
		}
		c.cache = make([]uint32, ctx.CacheSize/4)
		generateCache(c.cache, ctx.Epoch, ctx.Seed[:], logger)
		generateCDag(c.cDag, c.cache, ctx.Epoch, logger)
		return nil
	}
	// Disk storage is needed, this will get fancy
	path := filepath.Join(config.CacheDir, dumpName(kindCache, ctx.Seed))

	// We're about to mmap the file, ensure that the mapping is cleaned up when the
	// cache becomes unused.
	runtime.SetFinalizer(c, (*Cache).finalizer)

	// Try to load the file from disk and memory map it
	var err error
	c.dump, c.cache, err = store.load(path, kindCache, ctx, config.CachesLockMmap)
	if err == nil {
		logger.WithField("epoch", ctx.Epoch).Debug("Loaded old progpow cache from disk")
		generateCDag(c.cDag, c.cache, ctx.Epoch, logger)
		return nil
	}
	logger.WithField("err", err).Debug("Failed to load old progpow cache from disk")

	// No previous cache available, create a new cache file to fill
	c.dump, c.cache, err = store.generate(path, kindCache, ctx, config.CachesLockMmap, func(buffer []uint32) error {
		generateCache(buffer, ctx.Epoch, ctx.Seed[:], logger)
		return nil
	})
	if err != nil {
		logger.WithField("err", err).Error("Failed to generate mapped progpow cache")

		if err := ensureMemory("cache", ctx.CacheSize, logger); err != nil {
			return err
		}
		c.cache = make([]uint32, ctx.CacheSize/4)
		generateCache(c.cache, ctx.Epoch, ctx.Seed[:], logger)
	}
	generateCDag(c.cDag, c.cache, ctx.Epoch, logger)

	// Iterate over all previous instances and delete old ones
	store.removeStale(config.CacheDir, kindCache, ctx.Epoch, config.CachesOnDisk)
	return nil
}

// Close releases the memory map backing the cache. The cache must not be used
// afterwards.
func (c *Cache) Close() error {
	var err error
	if c.dump != nil {
		err = c.dump.Close()
		c.dump = nil
	}
	c.cache, c.cDag = nil, nil
	return err
}

// finalizer unmaps the memory and closes the file.
func (c *Cache) finalizer() {
	if c.dump != nil {
		c.dump.Close()
		c.dump = nil
	}
}

// Dataset wraps a full progpow dataset with some metadata to allow easier
// concurrent use. Once generated it is immutable and safe for unsynchronised
// concurrent reads.
type Dataset struct {
	ctx     EpochContext // Epoch for which this dataset is relevant
	dump    MappedFile   // Memory mapped dump backing the dataset, nil if in memory
	dataset []uint32     // The actual dataset content (may be memory mapped)
	once    sync.Once    // Ensures the dataset is generated only once
	done    atomic.Bool  // Atomic flag to determine generation status
	err     error        // Generation failure, set once
}

// newDataset creates a new progpow mining dataset and returns in as a plain Go
// interface to be usable in an LRU cache.
func newDataset(epoch uint64) interface{} {
	return &Dataset{ctx: EpochContext{Epoch: epoch}}
}

// Context returns the epoch parameters of the dataset.
func (d *Dataset) Context() EpochContext { return d.ctx }

// Epoch returns the epoch the dataset belongs to.
func (d *Dataset) Epoch() uint64 { return d.ctx.Epoch }

// generated returns whether this particular dataset finished generating already
// or not (it may not have been started at all). This is useful for remote miners
// to default to verification caches instead of blocking on DAG generations.
func (d *Dataset) generated() bool {
	return d.done.Load()
}

// generate ensures that the dataset content is generated before use. The cache
// must belong to the same epoch.
func (d *Dataset) generate(ctx context.Context, config *Config, cache *Cache, store *Store, progress ProgressFunc, logger *log.Logger) error {
	d.once.Do(func() {
		// Mark the dataset generated after we're done, callers polling it fall back
		// to the light path until then.
		defer d.done.Store(true)
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(log.Fields{
					"error":      r,
					"stacktrace": string(debug.Stack()),
				}).Error("Progpow dataset generation panicked")
				d.err = fmt.Errorf("progpow dataset generation panicked: %v", r)
			}
		}()
		d.err = d.build(ctx, config, cache, store, progress, logger)
	})
	return d.err
}

func (d *Dataset) build(ctx context.Context, config *Config, cache *Cache, store *Store, progress ProgressFunc, logger *log.Logger) error {
	if !cache.ctx.Covers(d.ctx.Epoch) {
		return fmt.Errorf("%w: cache epoch %d, dataset epoch %d", ErrEpochMismatch, cache.ctx.Epoch, d.ctx.Epoch)
	}
	if cache.cache == nil {
		return ErrReleased
	}
	d.ctx = cache.ctx
	epoch, size := d.ctx.Epoch, d.ctx.DatasetSize

	// If we don't store anything on disk, generate and return
	if config.DatasetDir == "" {
		if err := ensureMemory("dataset", size, logger); err != nil {
			return err
		}
		d.dataset = make([]uint32, size/4)
		err := generateDataset(ctx, d.dataset, epoch, cache.cache, progress, logger)
		if err != nil {
			d.dataset = nil
		}
		return err
	}
	// Disk storage is needed, this will get fancy
	path := filepath.Join(config.DatasetDir, dumpName(kindDataset, d.ctx.Seed))

	// We're about to mmap the file, ensure that the mapping is cleaned up when the
	// dataset becomes unused.
	runtime.SetFinalizer(d, (*Dataset).finalizer)

	// Try to load the file from disk and memory map it
	var err error
	d.dump, d.dataset, err = store.load(path, kindDataset, d.ctx, config.DatasetsLockMmap)
	if err == nil {
		logger.WithField("epoch", epoch).Debug("Loaded old progpow dataset from disk")
		return nil
	}
	logger.WithField("err", err).Debug("Failed to load old progpow dataset from disk")

	// No previous dataset available, create a new dataset file to fill
	d.dump, d.dataset, err = store.generate(path, kindDataset, d.ctx, config.DatasetsLockMmap, func(buffer []uint32) error {
		return generateDataset(ctx, buffer, epoch, cache.cache, progress, logger)
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.WithField("err", err).Error("Failed to generate mapped progpow dataset")

		if err := ensureMemory("dataset", size, logger); err != nil {
			return err
		}
		d.dataset = make([]uint32, size/4)
		if err := generateDataset(ctx, d.dataset, epoch, cache.cache, progress, logger); err != nil {
			d.dataset = nil
			return err
		}
	}
	// Iterate over all previous instances and delete old ones
	store.removeStale(config.DatasetDir, kindDataset, epoch, config.DatasetsOnDisk)
	return nil
}

// Close releases the memory map backing the dataset. The dataset must not be
// used afterwards.
func (d *Dataset) Close() error {
	var err error
	if d.dump != nil {
		err = d.dump.Close()
		d.dump = nil
	}
	d.dataset = nil
	return err
}

// finalizer closes any file handlers and memory maps open.
func (d *Dataset) finalizer() {
	if d.dump != nil {
		d.dump.Close()
		d.dump = nil
	}
}
