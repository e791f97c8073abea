package progpow

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/crypto/sha3"
)

const (
	progpowCacheBytes   = 16 * 1024             // Total size 16*1024 bytes
	progpowCacheWords   = progpowCacheBytes / 4 // Total size 16*1024 bytes
	progpowLanes        = 16                    // The number of parallel lanes that coordinate to calculate a single hash instance.
	progpowRegs         = 32                    // The register file usage size
	progpowDagLoads     = 4                     // Number of uint32 loads from the DAG per lane
	progpowCntCache     = 12
	progpowCntMath      = 20
	progpowPeriodLength = 50 // Blocks per progpow epoch (N)
	progpowCntDag       = loopAccesses
	progpowMixBytes     = 256

	fnvOffsetBasis = 0x811c9dc5
	fnvPrime       = 0x1000193
)

// lookupFunc returns the 16 words of the dataset item at the given index.
type lookupFunc func(index uint32) []uint32

// kiss99 is Marsaglia's KISS generator, the deterministic stream driving the
// program selection of each progpow period.
type kiss99 struct {
	z, w, jsr, jcong uint32
}

func (k *kiss99) next() uint32 {
	k.z = 36969*(k.z&65535) + (k.z >> 16)
	k.w = 18000*(k.w&65535) + (k.w >> 16)
	mwc := (k.z << 16) + k.w
	k.jsr ^= k.jsr << 17
	k.jsr ^= k.jsr >> 13
	k.jsr ^= k.jsr << 5
	k.jcong = 69069*k.jcong + 1234567
	return (mwc ^ k.jcong) + k.jsr
}

// fnv1a folds data into h with the FNV-1a step.
func fnv1a(h *uint32, d uint32) uint32 {
	*h = (*h ^ d) * fnvPrime
	return *h
}

// fillMix initialises the registers of a single lane from the per nonce seed.
func fillMix(seed uint64, lane uint32) [progpowRegs]uint32 {
	var (
		h   uint32 = fnvOffsetBasis
		rnd kiss99
		mix [progpowRegs]uint32
	)
	rnd.z = fnv1a(&h, uint32(seed))
	rnd.w = fnv1a(&h, uint32(seed>>32))
	rnd.jsr = fnv1a(&h, lane)
	rnd.jcong = fnv1a(&h, lane)

	for i := range mix {
		mix[i] = rnd.next()
	}
	return mix
}

// merge combines data into a register with a selector chosen operation that
// maintains entropy even when data is low entropy.
func merge(a *uint32, b uint32, r uint32) {
	switch r % 4 {
	case 0:
		*a = (*a * 33) + b
	case 1:
		*a = (*a ^ b) * 33
	case 2:
		*a = bits.RotateLeft32(*a, int((r>>16)%32)) ^ b
	case 3:
		*a = bits.RotateLeft32(*a, -int((r>>16)%32)) ^ b
	}
}

// progpowMath applies the selected random math operation to two registers.
func progpowMath(a uint32, b uint32, r uint32) uint32 {
	switch r % 11 {
	case 0:
		return a + b
	case 1:
		return a * b
	case 2:
		return uint32((uint64(a) * uint64(b)) >> 32)
	case 3:
		if a < b {
			return a
		}
		return b
	case 4:
		return bits.RotateLeft32(a, int(b%32))
	case 5:
		return bits.RotateLeft32(a, -int(b%32))
	case 6:
		return a & b
	case 7:
		return a | b
	case 8:
		return a ^ b
	case 9:
		return uint32(bits.LeadingZeros32(a) + bits.LeadingZeros32(b))
	case 10:
		return uint32(bits.OnesCount32(a) + bits.OnesCount32(b))
	}
	return 0
}

// program is the random program of one progpow period: the generator state
// every lane starts from and the shuffled register sequences.
type program struct {
	rnd         kiss99
	mixSeqDst   [progpowRegs]uint32
	mixSeqCache [progpowRegs]uint32
}

// newProgram creates the program of the given period.
func newProgram(period uint64) program {
	var (
		p program
		h uint32 = fnvOffsetBasis
	)
	p.rnd.z = fnv1a(&h, uint32(period))
	p.rnd.w = fnv1a(&h, uint32(period>>32))
	p.rnd.jsr = fnv1a(&h, uint32(period))
	p.rnd.jcong = fnv1a(&h, uint32(period>>32))

	// Create a random sequence of mix destinations for merge() and mix sources
	// for cache reads guaranteeing every destination merged once and every source
	// cached once per loop.
	for i := uint32(0); i < progpowRegs; i++ {
		p.mixSeqDst[i] = i
		p.mixSeqCache[i] = i
	}
	for i := uint32(progpowRegs - 1); i > 0; i-- {
		j := p.rnd.next() % (i + 1)
		p.mixSeqDst[i], p.mixSeqDst[j] = p.mixSeqDst[j], p.mixSeqDst[i]
		j = p.rnd.next() % (i + 1)
		p.mixSeqCache[i], p.mixSeqCache[j] = p.mixSeqCache[j], p.mixSeqCache[i]
	}
	return p
}

// progpowLoop executes a single dag access round of the program on all lanes.
func progpowLoop(prog *program, loop uint32, mix *[progpowLanes][progpowRegs]uint32, lookup lookupFunc, cDag []uint32, dagEntries uint32) {
	// All lanes share a base address for the global load. The lane providing it
	// rotates each loop; mix[l][0] carries the previous loop's dag data.
	dagAddrBase := mix[loop%progpowLanes][0] % dagEntries

	// The entry is 256 bytes, four consecutive dataset items.
	var entry [progpowLanes * progpowDagLoads]uint32
	for i := uint32(0); i < progpowMixBytes/hashBytes; i++ {
		copy(entry[i*hashWords:], lookup(dagAddrBase*(progpowMixBytes/hashBytes)+i))
	}

	for l := uint32(0); l < progpowLanes; l++ {
		offset := ((l ^ loop) % progpowLanes) * progpowDagLoads
		dagData := entry[offset : offset+progpowDagLoads]

		var (
			rnd            = prog.rnd
			mixSeqDstCnt   uint32
			mixSeqCacheCnt uint32
			lane           = &mix[l]
		)
		nextDst := func() uint32 {
			dst := prog.mixSeqDst[mixSeqDstCnt%progpowRegs]
			mixSeqDstCnt++
			return dst
		}
		for i := 0; i < progpowCntMath || i < progpowCntCache; i++ {
			if i < progpowCntCache {
				// Cached memory access, lanes access random 32-bit locations
				// within the first portion of the DAG.
				src := prog.mixSeqCache[mixSeqCacheCnt%progpowRegs]
				mixSeqCacheCnt++
				data := cDag[lane[src]%progpowCacheWords]
				dst := nextDst()
				merge(&lane[dst], data, rnd.next())
			}
			if i < progpowCntMath {
				// Random math, generate 2 unique sources.
				src1 := rnd.next() % progpowRegs
				src2 := rnd.next() % progpowRegs
				sel1 := rnd.next()
				dst := nextDst()
				sel2 := rnd.next()
				data := progpowMath(lane[src1], lane[src2], sel1)
				merge(&lane[dst], data, sel2)
			}
		}
		// Global load to sequential locations. Register 0 must be the first
		// destination so the next loop's address depends on the load.
		merge(&lane[0], dagData[0], rnd.next())
		for i := 1; i < progpowDagLoads; i++ {
			dst := nextDst()
			merge(&lane[dst], dagData[i], rnd.next())
		}
	}
}

// progpow runs the full hash for a header and nonce, returning the mix digest
// and the final digest.
func progpow(headerHash []byte, nonce uint64, size uint64, blockNumber uint64, cDag []uint32, lookup lookupFunc) ([]byte, []byte) {
	var (
		mix        [progpowLanes][progpowRegs]uint32
		laneResult [progpowLanes]uint32
		digest     [8]uint32
	)
	seed := keccakF800Short(headerHash, nonce, digest)

	for lane := uint32(0); lane < progpowLanes; lane++ {
		mix[lane] = fillMix(seed, lane)
	}
	prog := newProgram(blockNumber / progpowPeriodLength)
	dagEntries := uint32(size / progpowMixBytes)
	for loop := uint32(0); loop < progpowCntDag; loop++ {
		progpowLoop(&prog, loop, &mix, lookup, cDag, dagEntries)
	}

	// Reduce mix data to a per-lane 32-bit digest
	for l := 0; l < progpowLanes; l++ {
		laneResult[l] = fnvOffsetBasis
		for i := 0; i < progpowRegs; i++ {
			fnv1a(&laneResult[l], mix[l][i])
		}
	}
	// Reduce all lanes to a single 256-bit digest
	for i := range digest {
		digest[i] = fnvOffsetBasis
	}
	for l := 0; l < progpowLanes; l++ {
		fnv1a(&digest[l%8], laneResult[l])
	}

	mixHash := make([]byte, 32)
	for i, v := range digest {
		binary.LittleEndian.PutUint32(mixHash[i*4:], v)
	}
	return mixHash, keccakF800Long(headerHash, seed, digest)
}

// progpowLight computes the hash using only the verification cache, deriving
// the dataset items on demand. The optional memo returns previously derived
// items and stores new ones.
func progpowLight(size uint64, cache []uint32, headerHash []byte, nonce uint64, blockNumber uint64, cDag []uint32, memo itemMemo) ([]byte, []byte) {
	keccak512 := makeHasher(sha3.NewLegacyKeccak512())
	item := make([]uint32, hashWords)

	lookup := func(index uint32) []uint32 {
		if memo != nil && memo.get(index, item) {
			return item
		}
		generateDatasetWords(item, cache, index, keccak512)
		if memo != nil {
			memo.set(index, item)
		}
		return item
	}
	return progpow(headerHash, nonce, size, blockNumber, cDag, lookup)
}

// progpowFull computes the hash against a fully generated dataset.
func progpowFull(dataset []uint32, headerHash []byte, nonce uint64, blockNumber uint64) ([]byte, []byte) {
	lookup := func(index uint32) []uint32 {
		offset := uint64(index) * hashWords
		return dataset[offset : offset+hashWords]
	}
	return progpow(headerHash, nonce, uint64(len(dataset))*4, blockNumber, dataset[:progpowCacheWords], lookup)
}
