package progpow

import (
	"encoding/binary"
	"math/bits"
)

// keccakfRNDC are the round constants of keccak-f[800], the 32 bit truncation
// of the keccak-f[1600] constants for its 22 rounds.
var keccakfRNDC = [22]uint32{
	0x00000001, 0x00008082, 0x0000808a, 0x80008000, 0x0000808b, 0x80000001,
	0x80008081, 0x00008009, 0x0000008a, 0x00000088, 0x80008009, 0x8000000a,
	0x8000808b, 0x0000008b, 0x00008089, 0x00008003, 0x00008002, 0x00000080,
	0x0000800a, 0x8000000a, 0x80008081, 0x00008080,
}

var (
	keccakfROTC = [24]int{1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 2, 14, 27, 41, 56, 8, 25, 43, 62, 18, 39, 61, 20, 44}
	keccakfPILN = [24]int{10, 7, 11, 17, 18, 3, 5, 16, 8, 21, 24, 4, 15, 23, 19, 13, 12, 2, 20, 14, 22, 9, 6, 1}
)

func keccakF800Round(st *[25]uint32, r int) {
	var bc [5]uint32

	// Theta
	for i := 0; i < 5; i++ {
		bc[i] = st[i] ^ st[i+5] ^ st[i+10] ^ st[i+15] ^ st[i+20]
	}
	for i := 0; i < 5; i++ {
		t := bc[(i+4)%5] ^ bits.RotateLeft32(bc[(i+1)%5], 1)
		for j := 0; j < 25; j += 5 {
			st[j+i] ^= t
		}
	}
	// Rho Pi
	t := st[1]
	for i, j := range keccakfPILN {
		bc[0] = st[j]
		st[j] = bits.RotateLeft32(t, keccakfROTC[i])
		t = bc[0]
	}
	// Chi
	for j := 0; j < 25; j += 5 {
		copy(bc[:], st[j:j+5])
		for i := 0; i < 5; i++ {
			st[j+i] ^= ^bc[(i+1)%5] & bc[(i+2)%5]
		}
	}
	// Iota
	st[0] ^= keccakfRNDC[r]
}

// keccakF800 applies the full 22 round keccak-f[800] permutation in place.
func keccakF800(st *[25]uint32) {
	for r := 0; r < len(keccakfRNDC); r++ {
		keccakF800Round(st, r)
	}
}

// keccakF800State loads the header hash, a 64 bit value and a lane digest into
// a fresh state and permutes it.
func keccakF800State(headerHash []byte, value uint64, digest [8]uint32) [25]uint32 {
	var st [25]uint32
	for i := 0; i < 8; i++ {
		st[i] = binary.LittleEndian.Uint32(headerHash[i*4:])
	}
	st[8] = uint32(value)
	st[9] = uint32(value >> 32)
	copy(st[10:18], digest[:])

	keccakF800(&st)
	return st
}

// keccakF800Short derives the 64 bit per nonce seed from the header hash.
func keccakF800Short(headerHash []byte, nonce uint64, digest [8]uint32) uint64 {
	st := keccakF800State(headerHash, nonce, digest)
	return uint64(bits.ReverseBytes32(st[0]))<<32 | uint64(bits.ReverseBytes32(st[1]))
}

// keccakF800Long returns the 32 byte digest of the permuted state.
func keccakF800Long(headerHash []byte, value uint64, digest [8]uint32) []byte {
	st := keccakF800State(headerHash, value, digest)
	out := make([]byte, 32)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], st[i])
	}
	return out
}
