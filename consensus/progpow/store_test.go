package progpow

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

func testDataset(t *testing.T, height uint64) *Dataset {
	t.Helper()
	dataset, err := BuildDataset(context.Background(), height, testCache(t, height, 0), "", nil, nil)
	require.NoError(t, err)
	return dataset
}

func TestStoreRoundTrip(t *testing.T) {
	var (
		store   = NewStore(nil, nil)
		dataset = testDataset(t, 0)
		path    = filepath.Join(t.TempDir(), "dag", dumpName(kindDataset, dataset.Context().Seed))
	)
	require.NoError(t, store.Save(path, dataset))

	loaded, err := store.Load(path, dataset.Context())
	require.NoError(t, err)
	defer loaded.Close()

	require.True(t, loaded.generated())
	require.Equal(t, dataset.Context(), loaded.Context())
	require.Equal(t, dataset.dataset, loaded.dataset)

	// Only the dump itself is left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestStoreRejectsInvalidDumps(t *testing.T) {
	var (
		store   = NewStore(nil, nil)
		dataset = testDataset(t, 0)
		ctx     = dataset.Context()
		dir     = t.TempDir()
	)
	valid := filepath.Join(dir, "valid")
	require.NoError(t, store.Save(valid, dataset))
	dump, err := os.ReadFile(valid)
	require.NoError(t, err)

	write := func(name string, mutate func([]byte) []byte) string {
		data := mutate(append([]byte(nil), dump...))
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0644))
		return path
	}
	tests := []struct {
		name string
		path string
		ctx  EpochContext
		want error
	}{
		{
			name: "missing",
			path: filepath.Join(dir, "missing"),
			ctx:  ctx,
			want: ErrNeedsRegenerate,
		},
		{
			name: "magic",
			path: write("magic", func(b []byte) []byte { b[0] ^= 0xff; return b }),
			ctx:  ctx,
			want: ErrInvalidDumpMagic,
		},
		{
			name: "revision",
			path: write("revision", func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[8:], uint32(algorithmRevision+1))
				return b
			}),
			ctx:  ctx,
			want: ErrInvalidDumpRevision,
		},
		{
			name: "truncated header",
			path: write("header", func(b []byte) []byte { return b[:dumpHeaderBytes-1] }),
			ctx:  ctx,
			want: ErrDumpSizeMismatch,
		},
		{
			name: "truncated payload",
			path: write("payload", func(b []byte) []byte { return b[:len(b)-hashBytes] }),
			ctx:  ctx,
			want: ErrDumpSizeMismatch,
		},
		{
			name: "full size epoch",
			path: valid,
			ctx:  ForEpoch(0),
			want: ErrDumpSizeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Load(tt.path, tt.ctx)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrNeedsRegenerate)
		})
	}
}

func TestStoreSaveFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := NewMockFileMapper(ctrl)

	diskFull := errors.New("no space left on device")
	mapper.EXPECT().Replace("dump", int64(dumpHeaderBytes+testDatasetBytes), gomock.Any()).Return(diskFull)

	err := NewStore(mapper, nil).Save("dump", testDataset(t, 0))
	require.ErrorIs(t, err, diskFull)
	require.NotErrorIs(t, err, ErrNeedsRegenerate)
}

func TestStoreSaveRejectsReleasedDataset(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No Replace expectation: nothing may reach the disk.
	store := NewStore(NewMockFileMapper(ctrl), nil)

	closed := testDataset(t, 0)
	require.NoError(t, closed.Close())
	require.ErrorIs(t, store.Save("dump", closed), ErrReleased)

	truncated := testDataset(t, 0)
	truncated.dataset = truncated.dataset[:len(truncated.dataset)/2]
	require.ErrorIs(t, store.Save("dump", truncated), ErrReleased)

	require.ErrorIs(t, store.Save("dump", &Dataset{ctx: ForEpoch(0).testSized()}), ErrReleased)
}

func TestStoreReleasedDatasetLeavesNoDump(t *testing.T) {
	var (
		store   = NewStore(nil, nil)
		dataset = testDataset(t, 0)
		path    = filepath.Join(t.TempDir(), dumpName(kindDataset, dataset.Context().Seed))
	)
	require.NoError(t, dataset.Close())
	require.ErrorIs(t, store.Save(path, dataset), ErrReleased)

	_, err := store.Load(path, ForEpoch(0).testSized())
	require.ErrorIs(t, err, ErrNeedsRegenerate)
}

func TestStoreLoadClosesInvalidDump(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := NewMockFileMapper(ctrl)
	file := NewMockMappedFile(ctrl)

	file.EXPECT().Bytes().Return(make([]byte, dumpHeaderBytes)).AnyTimes()
	file.EXPECT().Close().Return(nil)
	mapper.EXPECT().Map("dump", false).Return(file, nil)

	_, err := NewStore(mapper, nil).Load("dump", ForEpoch(0))
	require.ErrorIs(t, err, ErrInvalidDumpMagic)
}

func TestCacheFallsBackToMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := NewMockFileMapper(ctrl)

	mapper.EXPECT().Map(gomock.Any(), false).Return(nil, os.ErrNotExist)
	mapper.EXPECT().Replace(gomock.Any(), int64(dumpHeaderBytes+testCacheBytes), gomock.Any()).Return(errors.New("read-only file system"))

	var (
		config = &Config{PowMode: ModeTest, CacheDir: t.TempDir(), CachesOnDisk: 1}
		cache  = newCache(0).(*Cache)
	)
	require.NoError(t, cache.generate(config, NewStore(mapper, nil), log.NewNullLogger()))
	require.Nil(t, cache.dump)

	res, err := LightCompute(cache, make([]byte, 32), 0, 0)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(testVectors[0].final), res.Digest)
}

func TestStoreRemoveStale(t *testing.T) {
	var (
		dir   = t.TempDir()
		store = NewStore(nil, nil)
		ctx   = ForEpoch(0)
		paths []string
	)
	for epoch := 0; epoch < 5; epoch++ {
		path := filepath.Join(dir, dumpName(kindCache, ctx.Seed))
		require.NoError(t, os.WriteFile(path, nil, 0644))
		paths = append(paths, path)
		ctx = ctx.Next()
	}
	// Dumps of the other kind are left alone.
	other := filepath.Join(dir, dumpName(kindDataset, ForEpoch(0).Seed))
	require.NoError(t, os.WriteFile(other, nil, 0644))

	// Without a limit nothing is removed.
	store.removeStale(dir, kindCache, 4, 0)
	for _, path := range paths {
		require.FileExists(t, path)
	}
	store.removeStale(dir, kindCache, 4, 2)

	for epoch, path := range paths {
		_, err := os.Stat(path)
		if epoch <= 2 {
			require.ErrorIs(t, err, os.ErrNotExist, "epoch %d", epoch)
		} else {
			require.NoError(t, err, "epoch %d", epoch)
		}
	}
	_, err := os.Stat(other)
	require.NoError(t, err)
}

func TestDumpName(t *testing.T) {
	seed := SeedHash(epochLength)
	name := dumpName(kindCache, seed)
	if isLittleEndian() {
		require.Equal(t, "cache-R1-290decd9548b62a8", name)
	}
	require.NotEqual(t, name, dumpName(kindDataset, seed))
}
