package progpow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

func TestProgpowDatasetSizes(t *testing.T) {
	for epoch := 0; epoch < maxCachedEpoch; epoch++ {
		require.Equal(t, calcDatasetSize(epoch), datasetSizes[epoch], "failed epoch %d", epoch)
	}
}

func TestProgpowCacheSizes(t *testing.T) {
	for epoch := 0; epoch < maxCachedEpoch; epoch++ {
		require.Equal(t, calcCacheSize(epoch), cacheSizes[epoch], "failed epoch %d", epoch)
	}
}

func TestLruFutureItem(t *testing.T) {
	cache := newlru("cache", 2, newCache, log.NewNullLogger())

	item, future := cache.get(0)
	require.NotNil(t, item)
	require.NotNil(t, future)
	require.Equal(t, uint64(1), future.(*Cache).Epoch())

	next, _ := cache.get(1)
	require.Same(t, future, next)

	again, future := cache.get(0)
	require.Same(t, item, again)
	require.Nil(t, future)
}

func TestLruRemove(t *testing.T) {
	cache := newlru("cache", 2, newCache, log.NewNullLogger())

	item, future := cache.get(0)
	cache.remove(0, item)
	again, _ := cache.get(0)
	require.NotSame(t, item, again)

	// A stale item does not evict its replacement.
	cache.remove(0, item)
	current, _ := cache.get(0)
	require.Same(t, again, current)

	cache.remove(1, future)
	next, _ := cache.get(1)
	require.NotSame(t, future, next)
	require.Equal(t, uint64(1), next.(*Cache).Epoch())
}

func TestEngineComputePowLight(t *testing.T) {
	progpow := NewTester()
	defer progpow.Close()

	res, err := progpow.ComputePowLight(common.Hash{}, 0, 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, common.HexToHash("3a72e40f6124398de81ca38e91ab83e6b8ef9a77bef27860429ba45a7af374a7"), res.MixDigest)
	require.Equal(t, common.HexToHash("b2cedf88041611ddf748c9b8acaf060b78981983c40703cddd4558faae3464fa"), res.Digest)

	cached, err := progpow.ComputePowLight(common.Hash{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, res, cached)
}

func TestEngineComputePowFull(t *testing.T) {
	progpow := NewTester()
	defer progpow.Close()

	tests := []struct {
		height uint64
		mix    string
		final  string
	}{
		{49, "11266c6f7c9aa936063a64feb5c500c087455a9ca22710c8ca20d418b203aee8", "d12ae409f60aa662baf76090a5aa813e2ef3665d4a002bd39ab891431aabdf84"},
		{30049, "b6e0e488b4d6fd6c9f5458f4bfe793ccf3c5352af20d2af7228fa5bcdd54ddd3", "d55bdd15195d1d502374b840d80f329ffadc9707f274ee42277b7e5b96cb5394"},
	}
	header := testHeader()
	for _, tt := range tests {
		full, err := progpow.ComputePowFull(header, 0x123456789abcdef0, tt.height, false)
		require.NoError(t, err)
		require.Equal(t, common.HexToHash(tt.mix), full.MixDigest, "height %d", tt.height)
		require.Equal(t, common.HexToHash(tt.final), full.Digest, "height %d", tt.height)
	}
}

func TestEngineComputePowFullAsync(t *testing.T) {
	progpow := New(Config{PowMode: ModeTest}, log.NewNullLogger())
	defer progpow.Close()

	light, err := progpow.ComputePowLight(common.Hash{}, 7, 10)
	require.NoError(t, err)

	// Whether the dataset is ready or the light path is used, the result is the same.
	for i := 0; i < 3; i++ {
		full, err := progpow.ComputePowFull(common.Hash{}, 7, 10, true)
		require.NoError(t, err)
		require.Equal(t, light, full)
	}
}

func TestEngineVerifySeal(t *testing.T) {
	progpow := NewTester()
	defer progpow.Close()

	header := testHeader()
	res, err := progpow.ComputePowLight(header, 42, 100)
	require.NoError(t, err)

	maxTarget := common.HexToHash("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

	digest, err := progpow.VerifySeal(header, 42, 100, res.MixDigest, maxTarget)
	require.NoError(t, err)
	require.Equal(t, res.Digest, digest)

	_, err = progpow.VerifySeal(header, 42, 100, common.Hash{1}, maxTarget)
	require.ErrorIs(t, err, ErrInvalidMixDigest)

	_, err = progpow.VerifySeal(header, 42, 100, res.MixDigest, common.Hash{})
	require.ErrorIs(t, err, ErrInvalidPoW)
}

func TestEngineDiskStorage(t *testing.T) {
	var (
		cacheDir   = t.TempDir()
		datasetDir = t.TempDir()
		config     = Config{
			PowMode:        ModeTest,
			CacheDir:       cacheDir,
			CachesInMem:    1,
			CachesOnDisk:   2,
			DatasetDir:     datasetDir,
			DatasetsInMem:  1,
			DatasetsOnDisk: 2,
		}
		header = testHeader()
	)
	progpow := New(config, log.NewNullLogger())
	want, err := progpow.ComputePowFull(header, 1, 5, false)
	require.NoError(t, err)
	require.NoError(t, progpow.Close())

	seed := SeedHash(5)
	require.FileExists(t, filepath.Join(cacheDir, dumpName(kindCache, seed)))
	require.FileExists(t, filepath.Join(datasetDir, dumpName(kindDataset, seed)))

	// A fresh engine loads the dumps instead of generating them.
	progpow = New(config, log.NewNullLogger())
	defer progpow.Close()

	have, err := progpow.ComputePowFull(header, 1, 5, false)
	require.NoError(t, err)
	require.Equal(t, want, have)

	light, err := progpow.ComputePowLight(header, 1, 5)
	require.NoError(t, err)
	require.Equal(t, want, light)
}

func TestEngineRemovesStaleDumps(t *testing.T) {
	dir := t.TempDir()
	progpow := New(Config{PowMode: ModeTest, CacheDir: dir, CachesOnDisk: 1}, log.NewNullLogger())

	_, err := progpow.ComputePowLight(common.Hash{}, 0, 0)
	require.NoError(t, err)
	_, err = progpow.ComputePowLight(common.Hash{}, 0, 2*epochLength)
	require.NoError(t, err)
	require.NoError(t, progpow.Close())

	_, err = os.Stat(filepath.Join(dir, dumpName(kindCache, SeedHash(0))))
	require.True(t, os.IsNotExist(err))
	require.FileExists(t, filepath.Join(dir, dumpName(kindCache, SeedHash(3*epochLength))))
}

// testHeader returns the header hash with bytes 0 to 31.
func testHeader() common.Hash {
	var header common.Hash
	for i := range header {
		header[i] = byte(i)
	}
	return header
}

func TestEngineRetriesFailedCache(t *testing.T) {
	stubMemory(t, 1, nil)

	progpow := NewTester()
	defer progpow.Close()

	_, err := progpow.ComputePowLight(common.Hash{}, 0, 0)
	require.ErrorIs(t, err, ErrResourceExhausted)

	stubMemory(t, 1<<40, nil)
	res, err := progpow.ComputePowLight(common.Hash{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("b2cedf88041611ddf748c9b8acaf060b78981983c40703cddd4558faae3464fa"), res.Digest)
}

func TestEngineRetriesFailedDataset(t *testing.T) {
	// Enough for the cache, too little for the dataset.
	stubMemory(t, testCacheBytes, nil)

	progpow := New(Config{PowMode: ModeTest}, log.NewNullLogger())
	defer progpow.Close()

	_, err := progpow.ComputePowFull(common.Hash{}, 0, 0, false)
	require.ErrorIs(t, err, ErrResourceExhausted)

	stubMemory(t, 1<<40, nil)
	res, err := progpow.ComputePowFull(common.Hash{}, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("3a72e40f6124398de81ca38e91ab83e6b8ef9a77bef27860429ba45a7af374a7"), res.MixDigest)
	require.Equal(t, common.HexToHash("b2cedf88041611ddf748c9b8acaf060b78981983c40703cddd4558faae3464fa"), res.Digest)
}

func TestEngineCloseRefusesBackgroundWork(t *testing.T) {
	progpow := New(Config{PowMode: ModeTest}, log.NewNullLogger())

	done := make(chan struct{})
	require.True(t, progpow.goBackground(func() { close(done) }))
	require.NoError(t, progpow.Close())
	<-done

	require.False(t, progpow.goBackground(func() { t.Error("background work ran after close") }))

	// Asynchronous requests fall back to generating in the foreground.
	res, err := progpow.ComputePowFull(common.Hash{}, 0, 0, true)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("b2cedf88041611ddf748c9b8acaf060b78981983c40703cddd4558faae3464fa"), res.Digest)
	require.NoError(t, progpow.Close())
}
