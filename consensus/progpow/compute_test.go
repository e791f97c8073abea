package progpow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/dominant-strategies/go-progpow/common"
)

func testCache(t *testing.T, height uint64, memoBytes int) *Cache {
	t.Helper()
	cache, err := buildCache(height, &Config{PowMode: ModeTest, LightItemCacheBytes: memoBytes}, nil)
	require.NoError(t, err)
	return cache
}

var testVectors = []struct {
	height uint64
	header []byte
	nonce  uint64
	mix    string
	final  string
}{
	{
		height: 0,
		header: make([]byte, 32),
		nonce:  0,
		mix:    "0x3a72e40f6124398de81ca38e91ab83e6b8ef9a77bef27860429ba45a7af374a7",
		final:  "0xb2cedf88041611ddf748c9b8acaf060b78981983c40703cddd4558faae3464fa",
	},
	{
		height: 49,
		header: testHeader().Bytes(),
		nonce:  0x123456789abcdef0,
		mix:    "0x11266c6f7c9aa936063a64feb5c500c087455a9ca22710c8ca20d418b203aee8",
		final:  "0xd12ae409f60aa662baf76090a5aa813e2ef3665d4a002bd39ab891431aabdf84",
	},
	{
		height: 30000,
		header: make([]byte, 32),
		nonce:  0,
		mix:    "0xf93db6806603ed6ec2d37e84da3afb88329f466d202451cf854a2cd9bb35efb9",
		final:  "0x0f92126275ec35cd7758d17a1b50408a33d5f6c43d2feecd146a21082c65edb4",
	},
	{
		height: 30049,
		header: testHeader().Bytes(),
		nonce:  0x123456789abcdef0,
		mix:    "0xb6e0e488b4d6fd6c9f5458f4bfe793ccf3c5352af20d2af7228fa5bcdd54ddd3",
		final:  "0xd55bdd15195d1d502374b840d80f329ffadc9707f274ee42277b7e5b96cb5394",
	},
}

func TestLightCompute(t *testing.T) {
	for _, tt := range testVectors {
		cache := testCache(t, tt.height, 0)

		res, err := LightCompute(cache, tt.header, tt.nonce, tt.height)
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Equal(t, common.HexToHash(tt.mix), res.MixDigest, "block %d", tt.height)
		require.Equal(t, common.HexToHash(tt.final), res.Digest, "block %d", tt.height)
	}
}

func TestFullCompute(t *testing.T) {
	for _, tt := range testVectors {
		cache := testCache(t, tt.height, 0)
		dataset, err := BuildDataset(context.Background(), tt.height, cache, "", nil, nil)
		require.NoError(t, err)

		res, err := FullCompute(dataset, tt.header, tt.nonce, tt.height)
		require.NoError(t, err)
		require.Equal(t, common.HexToHash(tt.mix), res.MixDigest, "block %d", tt.height)
		require.Equal(t, common.HexToHash(tt.final), res.Digest, "block %d", tt.height)
	}
}

func TestLightFullEquivalence(t *testing.T) {
	const height = 30049

	cache := testCache(t, height, 0)
	dataset, err := BuildDataset(context.Background(), height, cache, "", nil, nil)
	require.NoError(t, err)

	f := fuzz.New().NilChance(0)
	for i := 0; i < 16; i++ {
		var (
			header [32]byte
			nonce  uint64
			offset uint16
		)
		f.Fuzz(&header)
		f.Fuzz(&nonce)
		f.Fuzz(&offset)
		block := uint64(height/epochLength)*epochLength + uint64(offset)%epochLength

		light, err := LightCompute(cache, header[:], nonce, block)
		require.NoError(t, err)
		full, err := FullCompute(dataset, header[:], nonce, block)
		require.NoError(t, err)
		require.Equal(t, light, full, "block %d nonce %x", block, nonce)
	}
}

func TestLightComputeMemo(t *testing.T) {
	plain := testCache(t, 49, 0)
	memo := testCache(t, 49, 1<<20)
	require.NotNil(t, memo.memo)
	require.Nil(t, plain.memo)

	header := testHeader().Bytes()
	for nonce := uint64(0); nonce < 8; nonce++ {
		want, err := LightCompute(plain, header, nonce, 49)
		require.NoError(t, err)
		// Twice, so the second evaluation reads from the memo.
		for i := 0; i < 2; i++ {
			have, err := LightCompute(memo, header, nonce, 49)
			require.NoError(t, err)
			require.Equal(t, want, have)
		}
	}
}

func TestComputeInvalidInput(t *testing.T) {
	cache := testCache(t, 0, 0)

	_, err := LightCompute(cache, make([]byte, 31), 0, 0)
	require.ErrorIs(t, err, ErrInvalidHeaderLength)

	_, err = LightCompute(cache, make([]byte, 33), 0, 0)
	require.ErrorIs(t, err, ErrInvalidHeaderLength)

	_, err = LightCompute(cache, make([]byte, 32), 0, epochLength)
	require.ErrorIs(t, err, ErrEpochMismatch)

	dataset, err := BuildDataset(context.Background(), 0, cache, "", nil, nil)
	require.NoError(t, err)
	_, err = FullCompute(dataset, make([]byte, 32), 0, 2*epochLength)
	require.ErrorIs(t, err, ErrEpochMismatch)

	_, err = BuildDataset(context.Background(), epochLength, cache, "", nil, nil)
	require.ErrorIs(t, err, ErrEpochMismatch)
}

func TestComputeReleased(t *testing.T) {
	cache := testCache(t, 0, 0)
	dataset, err := BuildDataset(context.Background(), 0, cache, "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, dataset.Close())
	_, err = FullCompute(dataset, make([]byte, 32), 0, 0)
	require.ErrorIs(t, err, ErrReleased)

	require.NoError(t, cache.Close())
	_, err = LightCompute(cache, make([]byte, 32), 0, 0)
	require.ErrorIs(t, err, ErrReleased)
}

func TestBuildDatasetCancelled(t *testing.T) {
	cache := testCache(t, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildDataset(ctx, 0, cache, "", nil, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = BuildDataset(ctx, 0, cache, t.TempDir(), nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildDatasetPersisted(t *testing.T) {
	var (
		dir    = t.TempDir()
		cache  = testCache(t, 49, 0)
		header = testHeader().Bytes()
	)
	dataset, err := BuildDataset(context.Background(), 49, cache, dir, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, dataset.dump)
	defer dataset.Close()

	path := filepath.Join(dir, dumpName(kindDataset, cache.Context().Seed))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(dumpHeaderBytes+testDatasetBytes), info.Size())

	// A second build maps the dump instead of generating.
	reloaded, err := BuildDataset(context.Background(), 49, cache, dir, func(done, total uint64) {
		t.Errorf("dataset regenerated: %d/%d", done, total)
	}, nil)
	require.NoError(t, err)
	defer reloaded.Close()

	want, err := FullCompute(dataset, header, 0x123456789abcdef0, 49)
	require.NoError(t, err)
	have, err := FullCompute(reloaded, header, 0x123456789abcdef0, 49)
	require.NoError(t, err)
	require.Equal(t, want, have)
	require.Equal(t, common.HexToHash(testVectors[1].final), have.Digest)
}

// Hashes of a chain of blocks, each header being the previous final digest,
// evaluated against full size caches.
func TestLightComputeChain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full size cache generation in short mode")
	}
	chain := []struct {
		height uint64
		nonce  uint64
		mix    string
		final  string
	}{
		{0, 0x0000000000000000, "a09ffaa0f2b5d47a98c2d4fbc0e90936710dd2b2a220fce04e8d55a6c6a093d6", "7ea12cfc33f64616ab7dbbddf3362ee7dd3e1e20d60d860a85c51d6559c912c4"},
		{49, 0x0000000006ff2c47, "4e453d59426905122ef3d176a6fe660f29b53fdf2f82b5af2753dbaaebebf609", "f0167e445f8510504ce024856ec614a1a4461610bf58caa32df731ee4c315641"},
		{50, 0x00000000076e482e, "4e5291ae6132f64bff00dd05861721b0da701f789e7e65d096b9affa24bffd7e", "fdc3bce3e0d0b1a5af43f84acc7d5421d423ec5d3b7e41698178b24c459a6cbe"},
		{99, 0x000000003917afab, "d35c7e4012204d1db243dc7cf0bf2075f897e362e6ad2b36c02e325cfc6f8dbb", "5b014c2c706476b56cf3b9c37ed999d30b20c0fb038d27cc94c991dacef62033"},
		{29950, 0x005d409dbc23a62a, "0c64704dedb0677149b47fabc6726e9ff0585233692c8562e485a330ce90c0e9", "a01b432e82cacaae095ef402b575f1764c45247ba9cf17e99d5432cf00829ee2"},
		{29999, 0x005db5fa4c2a3d03, "3d95cad9cf4513bb31a4766d3a2f488bbff1baa57da8b2252e246ac91594c769", "0fc3e6e1392033619f614ec3236d8fbfcefe94d9fdc341a4d7daeffa0b8ad35d"},
		{30000, 0x005db8607994ff30, "7ee9d0c571ed35073404454eebe9a73a6d677a32446cf6c427ee63a63bd512da", "b94de4495555dc2ab4ad8725cabd395178813c8c434134b2f25062b5f72dafb9"},
		{30049, 0x005e2e215a8ca2e7, "7a16d37208288152237afdc13724d26fe7aadf3cd354a42c587a4192761ef18e", "e152d3770855cea35a94ee53ab321f93ee3a426513c6ab1ec5e8d81ea9a661d7"},
		{30050, 0x005e30899481055e, "005df2434f2a5265c2ed0d13dd12308795620202d2784a40967461c383f859a3", "55d013e85571e46e914a7529909fbfc686965a92c7baaef2e89e5b5f533a6dc9"},
		{30099, 0x005ea6aef136f88b, "d8b1046cc2c8273a06e6f7ce19b7b4aefb7fb43b141721663252e2872b654548", "8ba5629b6affa0514c2f4951c3a63761465ef0e5be7cbb8f9ce230a5564faccb"},
		{59950, 0x02ebe0503bd7b1da, "b3131de1a747449e5328f50742447d5c6da637a5d141a117caf9a986bd524de9", "10af438404304f4a7de0b07e7d08bfc80b521860237e3e2d47f77630eef5f742"},
		{59999, 0x02edb6275bd221e3, "87f7d6c73fb86a5ed00d2ad7fff7b2a8a9796c3138b31f2473b89065946cb0ed", "3863e5c767a6b0d28f5cf1d261e35c52fe03f7fd690d50c10596ec73d7595887"},
	}
	var (
		header common.Hash
		cache  *Cache
	)
	for _, block := range chain {
		if cache == nil || !cache.Context().CoversHeight(block.height) {
			var err error
			cache, err = BuildCache(block.height, nil)
			require.NoError(t, err)
		}
		res, err := LightCompute(cache, header[:], block.nonce, block.height)
		require.NoError(t, err)
		require.Equal(t, common.HexToHash(block.mix), res.MixDigest, "block %d", block.height)
		require.Equal(t, common.HexToHash(block.final), res.Digest, "block %d", block.height)

		header = res.Digest
	}
}

func TestMakeCacheAndDataset(t *testing.T) {
	var (
		dir  = t.TempDir()
		seed = SeedHash(epochLength)
	)
	require.NoError(t, MakeCache(epochLength+49, dir, ModeTest, nil))
	require.NoError(t, MakeDataset(context.Background(), epochLength+49, dir, ModeTest, nil, nil))

	info, err := os.Stat(filepath.Join(dir, dumpName(kindCache, seed)))
	require.NoError(t, err)
	require.Equal(t, int64(dumpHeaderBytes+testCacheBytes), info.Size())

	info, err = os.Stat(filepath.Join(dir, dumpName(kindDataset, seed)))
	require.NoError(t, err)
	require.Equal(t, int64(dumpHeaderBytes+testDatasetBytes), info.Size())

	// The persisted dataset hashes like a freshly generated one.
	dataset, err := NewStore(nil, nil).Load(filepath.Join(dir, dumpName(kindDataset, seed)), ForEpoch(1).testSized())
	require.NoError(t, err)
	defer dataset.Close()

	res, err := FullCompute(dataset, testHeader().Bytes(), 0x123456789abcdef0, 30049)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(testVectors[3].mix), res.MixDigest)
}
