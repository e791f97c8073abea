package progpow

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

//go:generate mockgen -source=store.go -destination=store_mock_test.go -package=progpow

var (
	// algorithmRevision is the data structure version used for file naming.
	algorithmRevision = 1
	// dumpMagic is a dataset dump header to sanity check a data dump.
	dumpMagic = []uint32{0xbaddcafe, 0xfee1dead}
)

// dumpHeaderBytes is the length of the dump header: magic, revision, cache
// size and dataset size.
const dumpHeaderBytes = 28

// dumpKind tells which buffer of an epoch a dump holds.
type dumpKind int

const (
	kindCache dumpKind = iota
	kindDataset
)

func (k dumpKind) String() string {
	if k == kindCache {
		return "cache"
	}
	return "full"
}

// payloadSize returns the number of payload bytes a dump of this kind must carry.
func (k dumpKind) payloadSize(ctx EpochContext) uint64 {
	if k == kindCache {
		return ctx.CacheSize
	}
	return ctx.DatasetSize
}

// isLittleEndian returns whether the local system is running in little or big
// endian byte order.
func isLittleEndian() bool {
	n := uint32(0x01020304)
	return *(*byte)(unsafe.Pointer(&n)) == 0x04
}

// dumpName returns the file name of a dump of the given kind and seed.
func dumpName(kind dumpKind, seed common.Hash) string {
	var endian string
	if !isLittleEndian() {
		endian = ".be"
	}
	return fmt.Sprintf("%s-R%d-%x%s", kind, algorithmRevision, seed[:8], endian)
}

// encodeDumpHeader serialises the dump header for an epoch.
func encodeDumpHeader(ctx EpochContext) []byte {
	header := make([]byte, dumpHeaderBytes)
	binary.LittleEndian.PutUint32(header[0:], dumpMagic[0])
	binary.LittleEndian.PutUint32(header[4:], dumpMagic[1])
	binary.LittleEndian.PutUint32(header[8:], uint32(algorithmRevision))
	binary.LittleEndian.PutUint64(header[12:], ctx.CacheSize)
	binary.LittleEndian.PutUint64(header[20:], ctx.DatasetSize)
	return header
}

// verifyDumpHeader checks a dump against the expected epoch parameters.
func verifyDumpHeader(dump []byte, kind dumpKind, ctx EpochContext) error {
	if len(dump) < dumpHeaderBytes {
		return errors.Wrapf(ErrDumpSizeMismatch, "truncated header (%d bytes)", len(dump))
	}
	for i, magic := range dumpMagic {
		if binary.LittleEndian.Uint32(dump[i*4:]) != magic {
			return ErrInvalidDumpMagic
		}
	}
	if rev := binary.LittleEndian.Uint32(dump[8:]); rev != uint32(algorithmRevision) {
		return errors.Wrapf(ErrInvalidDumpRevision, "have %d, want %d", rev, algorithmRevision)
	}
	var (
		cacheSize   = binary.LittleEndian.Uint64(dump[12:])
		datasetSize = binary.LittleEndian.Uint64(dump[20:])
	)
	if cacheSize != ctx.CacheSize || datasetSize != ctx.DatasetSize {
		return errors.Wrapf(ErrDumpSizeMismatch, "have cache %d dataset %d, want cache %d dataset %d",
			cacheSize, datasetSize, ctx.CacheSize, ctx.DatasetSize)
	}
	if payload := uint64(len(dump) - dumpHeaderBytes); payload != kind.payloadSize(ctx) {
		return errors.Wrapf(ErrDumpSizeMismatch, "payload %d bytes, want %d", payload, kind.payloadSize(ctx))
	}
	return nil
}

// MappedFile is a read only view of a file mapped into memory.
type MappedFile interface {
	Bytes() []byte
	Close() error
}

// FileMapper abstracts the platform specific file mapping used by the dag
// store: obtaining a read only view of a file and atomically replacing one.
type FileMapper interface {
	// Map returns a read only view of the file at path, optionally locked
	// into memory.
	Map(path string, lock bool) (MappedFile, error)
	// Replace creates a file of the given size, lets fill write its contents
	// and atomically moves it to path.
	Replace(path string, size int64, fill func(buffer []byte) error) error
}

// mmapFile is a file memory mapped with mmap-go.
type mmapFile struct {
	file *os.File
	mem  mmap.MMap
}

func (m *mmapFile) Bytes() []byte { return m.mem }

func (m *mmapFile) Close() error {
	if m.mem == nil {
		return nil
	}
	err := m.mem.Unmap()
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	m.mem, m.file = nil, nil
	return err
}

// mmapFileMapper maps files with mmap-go.
type mmapFileMapper struct{}

// NewMmapFileMapper returns the file mapper backed by mmap.
func NewMmapFileMapper() FileMapper {
	return mmapFileMapper{}
}

func (mmapFileMapper) Map(path string, lock bool) (MappedFile, error) {
	file, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	mem, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		return nil, err
	}
	if lock {
		if err := mem.Lock(); err != nil {
			mem.Unmap()
			file.Close()
			return nil, err
		}
	}
	return &mmapFile{file: file, mem: mem}, nil
}

func (mmapFileMapper) Replace(path string, size int64, fill func(buffer []byte) error) (err error) {
	// Ensure the data folder exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	// Create a huge temporary empty file to fill with data
	temp := path + "." + strconv.Itoa(rand.Int())

	dump, err := os.Create(temp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dump.Close()
			os.Remove(temp)
		}
	}()
	if err = dump.Truncate(size); err != nil {
		return err
	}
	// Memory map the file for writing and fill it with the generator
	mem, err := mmap.Map(dump, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	if err = fill(mem); err != nil {
		mem.Unmap()
		return err
	}
	if err = mem.Flush(); err != nil {
		mem.Unmap()
		return err
	}
	if err = mem.Unmap(); err != nil {
		return err
	}
	if err = dump.Close(); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

// Store persists caches and datasets as dumps prefixed with a header naming
// the epoch parameters they were generated for. A path must only be written by
// one writer at a time; the store itself provides no locking.
type Store struct {
	mapper FileMapper
	logger *log.Logger
}

// NewStore creates a dag store on top of a file mapper, defaulting to mmap.
func NewStore(mapper FileMapper, logger *log.Logger) *Store {
	if mapper == nil {
		mapper = NewMmapFileMapper()
	}
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Store{mapper: mapper, logger: logger}
}

// load maps a dump and verifies it against the epoch. Every failure to obtain
// a trustworthy dump, including a missing file, matches ErrNeedsRegenerate.
func (s *Store) load(path string, kind dumpKind, ctx EpochContext, lock bool) (MappedFile, []uint32, error) {
	file, err := s.mapper.Map(path, lock)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrNeedsRegenerate, "map %s: %v", path, err)
	}
	if err := verifyDumpHeader(file.Bytes(), kind, ctx); err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, bytesToWords(file.Bytes()[dumpHeaderBytes:]), nil
}

// generate writes a dump filled by the generator, then maps the result.
func (s *Store) generate(path string, kind dumpKind, ctx EpochContext, lock bool, generator func(buffer []uint32) error) (MappedFile, []uint32, error) {
	size := int64(dumpHeaderBytes + kind.payloadSize(ctx))
	err := s.mapper.Replace(path, size, func(buffer []byte) error {
		copy(buffer, encodeDumpHeader(ctx))
		return generator(bytesToWords(buffer[dumpHeaderBytes:]))
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "write %s dump %s", kind, path)
	}
	return s.load(path, kind, ctx, lock)
}

// Load maps a persisted dataset, failing with ErrNeedsRegenerate unless its
// header matches the epoch.
func (s *Store) Load(path string, ctx EpochContext) (*Dataset, error) {
	dump, data, err := s.load(path, kindDataset, ctx, false)
	if err != nil {
		return nil, err
	}
	d := &Dataset{ctx: ctx, dump: dump, dataset: data}
	d.once.Do(func() {})
	d.done.Store(true)
	runtime.SetFinalizer(d, (*Dataset).finalizer)
	return d, nil
}

// Save atomically replaces the file at path with a dump of the dataset. A
// released or partially built dataset is refused with ErrReleased.
func (s *Store) Save(path string, dataset *Dataset) error {
	if dataset.dataset == nil || uint64(len(dataset.dataset))*4 != dataset.ctx.DatasetSize {
		return errors.Wrapf(ErrReleased, "save dataset %s", path)
	}
	err := s.mapper.Replace(path, int64(dumpHeaderBytes+dataset.ctx.DatasetSize), func(buffer []byte) error {
		copy(buffer, encodeDumpHeader(dataset.ctx))
		copy(bytesToWords(buffer[dumpHeaderBytes:]), dataset.dataset)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save dataset %s", path)
	}
	s.logger.WithFields(log.Fields{
		"path":  path,
		"epoch": dataset.ctx.Epoch,
	}).Debug("Saved progpow dataset")
	return nil
}

// removeStale deletes dumps of the epochs more than limit epochs before the
// given one. A non positive limit keeps every dump.
func (s *Store) removeStale(dir string, kind dumpKind, epoch uint64, limit int) {
	if limit <= 0 {
		return
	}
	var seed common.Hash
	for ep := 0; ep <= int(epoch)-limit; ep, seed = ep+1, nextSeedHash(seed) {
		path := filepath.Join(dir, dumpName(kind, seed))
		if err := os.Remove(path); err == nil {
			s.logger.WithFields(log.Fields{
				"epoch": ep,
				"path":  path,
			}).Debug("Removed stale progpow dump")
		}
	}
}
