package progpow

import (
	"context"
	"encoding/binary"
	"hash"
	"math/big"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

const (
	datasetInitBytes   = 1 << 30 // Bytes in dataset at genesis
	datasetGrowthBytes = 1 << 23 // Dataset growth per epoch
	cacheInitBytes     = 1 << 24 // Bytes in cache at genesis
	cacheGrowthBytes   = 1 << 17 // Cache growth per epoch
	epochLength        = 30000   // Blocks per epoch
	mixBytes           = 128     // Width of mix
	hashBytes          = 64      // Hash length in bytes
	hashWords          = 16      // Number of 32 bit ints in a hash
	datasetParents     = 256     // Number of parents of each dataset element
	cacheRounds        = 3       // Number of rounds in cache production
	loopAccesses       = 64      // Number of accesses in hashimoto loop
	maxEpoch           = 2048    // Max Epoch for included tables

	testCacheBytes   = 1024      // Cache size used by ModeTest
	testDatasetBytes = 32 * 1024 // Dataset size used by ModeTest
)

// ProgressFunc is invoked while a dataset is generated with the number of
// items done so far and the total item count.
type ProgressFunc func(done, total uint64)

// cacheSize returns the size of the verification cache that belongs to a certain
// block number.
func cacheSize(block uint64) uint64 {
	epoch := int(block / epochLength)
	if epoch < maxCachedEpoch {
		return cacheSizes[epoch]
	}
	return calcCacheSize(epoch)
}

// calcCacheSize calculates the cache size for epoch. The cache size grows linearly,
// however, we always take the highest prime below the linearly growing threshold in
// order to reduce the risk of accidental regularities leading to cyclic behavior.
func calcCacheSize(epoch int) uint64 {
	size := cacheInitBytes + cacheGrowthBytes*uint64(epoch) - hashBytes
	for !new(big.Int).SetUint64(size / hashBytes).ProbablyPrime(1) { // Always accurate for n < 2^64
		size -= 2 * hashBytes
	}
	return size
}

// datasetSize returns the size of the mining dataset that belongs to a certain
// block number.
func datasetSize(block uint64) uint64 {
	epoch := int(block / epochLength)
	if epoch < maxCachedEpoch {
		return datasetSizes[epoch]
	}
	return calcDatasetSize(epoch)
}

// calcDatasetSize calculates the dataset size for epoch. The dataset size grows linearly,
// however, we always take the highest prime below the linearly growing threshold in order
// to reduce the risk of accidental regularities leading to cyclic behavior.
func calcDatasetSize(epoch int) uint64 {
	size := datasetInitBytes + datasetGrowthBytes*uint64(epoch) - mixBytes
	for !new(big.Int).SetUint64(size / mixBytes).ProbablyPrime(1) { // Always accurate for n < 2^64
		size -= 2 * mixBytes
	}
	return size
}

// hasher is a repetitive hasher allowing the same hash data structures to be
// reused between hash runs instead of requiring new ones to be created.
type hasher func(dest []byte, data []byte)

// makeHasher creates a repetitive hasher, allowing the same hash data structures to
// be reused between hash runs instead of requiring new ones to be created. The returned
// function is not thread safe!
func makeHasher(h hash.Hash) hasher {
	// sha3.state supports Read to get the sum, use it to avoid the overhead of Sum.
	// Read alters the state but we reset the hash before every operation.
	type readerHash interface {
		hash.Hash
		Read([]byte) (int, error)
	}
	rh, ok := h.(readerHash)
	if !ok {
		return func(dest []byte, data []byte) {
			h.Reset()
			h.Write(data)
			h.Sum(dest[:0])
		}
	}
	outputLen := rh.Size()
	return func(dest []byte, data []byte) {
		rh.Reset()
		rh.Write(data)
		rh.Read(dest[:outputLen])
	}
}

// seedHash is the seed to use for generating a verification cache and the mining
// dataset. The block number passed should be pre-rounded to an epoch boundary + 1
// e.g: seedHash(epoch*epochLength + 1)
func seedHash(block uint64) []byte {
	seed := make([]byte, 32)
	if block < epochLength {
		return seed
	}
	keccak256 := makeHasher(sha3.NewLegacyKeccak256())
	for i := 0; i < int(block/epochLength); i++ {
		keccak256(seed, seed)
	}
	return seed
}

// nextSeedHash advances a seed by one epoch.
func nextSeedHash(seed common.Hash) common.Hash {
	var next common.Hash
	makeHasher(sha3.NewLegacyKeccak256())(next[:], seed[:])
	return next
}

// generateCache creates a verification cache of a given size for an input seed.
// The cache production process involves first sequentially filling up 32 MB of
// memory, then performing two passes of Sergio Demian Lerner's RandMemoHash
// algorithm from Strict Memory Hard Hashing Functions (2014). The output is a
// set of 524288 64-byte values.
// This method places the result into dest in machine byte order.
func generateCache(dest []uint32, epoch uint64, seed []byte, logger *log.Logger) {
	// Print some debug logs to allow analysis on low end devices
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)

		fields := log.Fields{
			"epoch":   epoch,
			"elapsed": common.PrettyDuration(elapsed),
		}
		if elapsed > 3*time.Second {
			logger.WithFields(fields).Info("Generated progpow verification cache")
		} else {
			logger.WithFields(fields).Debug("Generated progpow verification cache")
		}
		cacheGenerationTimer.Observe(elapsed.Seconds())
	}()
	// Convert our destination slice to a byte buffer
	cache := wordsToBytes(dest)

	// Calculate the number of theoretical rows (we'll store in one buffer nonetheless)
	size := uint64(len(cache))
	rows := int(size) / hashBytes

	// Start a monitoring goroutine to report progress on low end devices
	var progress uint32

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(3 * time.Second):
				logger.WithFields(log.Fields{
					"percentage": atomic.LoadUint32(&progress) * 100 / uint32(rows) / (cacheRounds + 1),
					"elapsed":    common.PrettyDuration(time.Since(start)),
				}).Info("Generating progpow verification cache")
			}
		}
	}()
	// Create a hasher to reuse between invocations
	keccak512 := makeHasher(sha3.NewLegacyKeccak512())

	// Sequentially produce the initial dataset
	keccak512(cache, seed)
	for offset := uint64(hashBytes); offset < size; offset += hashBytes {
		keccak512(cache[offset:], cache[offset-hashBytes:offset])
		atomic.AddUint32(&progress, 1)
	}
	// Use a low-round version of randmemohash
	temp := make([]byte, hashBytes)

	for i := 0; i < cacheRounds; i++ {
		for j := 0; j < rows; j++ {
			var (
				srcOff = ((j - 1 + rows) % rows) * hashBytes
				dstOff = j * hashBytes
				xorOff = int(binary.LittleEndian.Uint32(cache[dstOff:])%uint32(rows)) * hashBytes
			)
			for k := 0; k < hashBytes; k++ {
				temp[k] = cache[srcOff+k] ^ cache[xorOff+k]
			}
			keccak512(cache[dstOff:], temp)

			atomic.AddUint32(&progress, 1)
		}
	}
	// Swap the byte order on big endian systems and return
	if !isLittleEndian() {
		swap(cache)
	}
}

// swap changes the byte order of the buffer assuming a uint32 representation.
func swap(buffer []byte) {
	for i := 0; i < len(buffer); i += 4 {
		binary.BigEndian.PutUint32(buffer[i:], binary.LittleEndian.Uint32(buffer[i:]))
	}
}

// wordsToBytes reinterprets a word buffer as its raw bytes without copying.
func wordsToBytes(words []uint32) []byte {
	if len(words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*4)
}

// bytesToWords reinterprets a 4 byte aligned buffer as machine order words
// without copying.
func bytesToWords(buffer []byte) []uint32 {
	if len(buffer) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buffer[0])), len(buffer)/4)
}

// fnv is an algorithm inspired by the FNV hash, which in some cases is used as
// a non-associative substitute for XOR. Note that we multiply the prime with
// the full 32-bit input, in contrast with the FNV-1 spec which multiplies the
// prime with one byte (octet) in turn.
func fnv(a, b uint32) uint32 {
	return a*0x01000193 ^ b
}

// fnvHash mixes in data into mix using the progpow fnv method.
func fnvHash(mix []uint32, data []uint32) {
	for i := 0; i < len(mix); i++ {
		mix[i] = mix[i]*0x01000193 ^ data[i]
	}
}

// generateDatasetItem combines data from 256 pseudorandomly selected cache nodes,
// and hashes that to compute a single dataset node.
func generateDatasetItem(cache []uint32, index uint32, keccak512 hasher) []byte {
	// Calculate the number of theoretical rows (we use one buffer nonetheless)
	rows := uint32(len(cache) / hashWords)

	// Initialize the mix
	mix := make([]byte, hashBytes)

	binary.LittleEndian.PutUint32(mix, cache[(index%rows)*hashWords]^index)
	for i := 1; i < hashWords; i++ {
		binary.LittleEndian.PutUint32(mix[i*4:], cache[(index%rows)*hashWords+uint32(i)])
	}
	keccak512(mix, mix)

	// Convert the mix to uint32s to avoid constant bit shifting
	intMix := make([]uint32, hashWords)
	for i := 0; i < len(intMix); i++ {
		intMix[i] = binary.LittleEndian.Uint32(mix[i*4:])
	}
	// fnv it with a lot of random cache nodes based on index
	for i := uint32(0); i < datasetParents; i++ {
		parent := fnv(index^i, intMix[i%16]) % rows
		fnvHash(intMix, cache[parent*hashWords:])
	}
	// Flatten the uint32 mix into a binary one and return
	for i, val := range intMix {
		binary.LittleEndian.PutUint32(mix[i*4:], val)
	}
	keccak512(mix, mix)
	return mix
}

// generateDatasetWords derives a single dataset item as machine order words.
func generateDatasetWords(dest []uint32, cache []uint32, index uint32, keccak512 hasher) {
	item := generateDatasetItem(cache, index, keccak512)
	for i := range dest[:hashWords] {
		dest[i] = binary.LittleEndian.Uint32(item[i*4:])
	}
}

// generateDataset generates the entire progpow dataset for mining. Items are
// derived on all CPUs; a cancelled context stops the workers between items and
// the context error is returned.
// This method places the result into dest in machine byte order.
func generateDataset(ctx context.Context, dest []uint32, epoch uint64, cache []uint32, progress ProgressFunc, logger *log.Logger) error {
	// Print some debug logs to allow analysis on low end devices
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)

		fields := log.Fields{
			"epoch":   epoch,
			"elapsed": common.PrettyDuration(elapsed),
		}
		if elapsed > 3*time.Second {
			logger.WithFields(fields).Info("Generated progpow dataset")
		} else {
			logger.WithFields(fields).Debug("Generated progpow dataset")
		}
		datasetGenerationTimer.Observe(elapsed.Seconds())
	}()

	// Figure out whether the bytes need to be swapped for the machine
	swapped := !isLittleEndian()

	// Convert our destination slice to a byte buffer
	dataset := wordsToBytes(dest)

	// Generate the dataset on many goroutines since it takes a while
	threads := runtime.NumCPU()
	size := uint64(len(dataset))
	total := size / hashBytes
	percent := total / 100
	if percent == 0 {
		percent = 1
	}
	var done uint64

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		id := i
		group.Go(func() error {
			// Create a hasher to reuse between invocations
			keccak512 := makeHasher(sha3.NewLegacyKeccak512())

			// Calculate the data segment this thread should generate
			batch := (total + uint64(threads) - 1) / uint64(threads)
			first := uint64(id) * batch
			limit := first + batch
			if limit > total {
				limit = total
			}
			// Calculate the dataset segment
			for index := first; index < limit; index++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				item := generateDatasetItem(cache, uint32(index), keccak512)
				if swapped {
					swap(item)
				}
				copy(dataset[index*hashBytes:], item)

				if count := atomic.AddUint64(&done, 1); count%percent == 0 || count == total {
					if progress != nil {
						progress(count, total)
					}
					if count%percent == 0 {
						logger.WithFields(log.Fields{
							"percentage": count * 100 / total,
							"elapsed":    common.PrettyDuration(time.Since(start)),
						}).Debug("Generating progpow dataset")
					}
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// generateCDag derives the first progpowCacheWords words of the dataset, which
// progpow reads from its cached region, straight from the verification cache.
func generateCDag(cDag, cache []uint32, epoch uint64, logger *log.Logger) {
	if cDag == nil {
		return
	}
	start := time.Now()
	keccak512 := makeHasher(sha3.NewLegacyKeccak512())

	for i := uint32(0); i < progpowCacheWords/hashWords; i++ {
		generateDatasetWords(cDag[i*hashWords:], cache, i, keccak512)
	}

	logger.WithFields(log.Fields{
		"epoch":   epoch,
		"elapsed": common.PrettyDuration(time.Since(start)),
	}).Trace("Generated progpow cDag")
}
