package progpow

import (
	"bytes"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/dominant-strategies/go-progpow/common"
)

// maxTarget is the largest representable target, 2^256-1.
var maxTarget = new(uint256.Int).SetAllOne()

// MeetsTarget reports whether the digest, read as a big endian 256 bit integer,
// is at or below the target.
func MeetsTarget(digest common.Hash, target common.Hash) bool {
	d := new(uint256.Int).SetBytes32(digest[:])
	t := new(uint256.Int).SetBytes32(target[:])
	return !d.Gt(t)
}

// TargetFromDifficulty returns 2^256 / difficulty, clamped to 2^256-1 for a
// difficulty of one.
func TargetFromDifficulty(difficulty *big.Int) (common.Hash, error) {
	if difficulty == nil || difficulty.Sign() <= 0 {
		return common.Hash{}, ErrInvalidDifficulty
	}
	target, overflow := uint256.FromBig(new(big.Int).Div(common.Big2e256, difficulty))
	if overflow {
		target = maxTarget
	}
	return common.Hash(target.Bytes32()), nil
}

// IntrinsicLogS returns the logarithm of the intrinsic entropy reduction of a
// PoW hash, the work it represents as a fixed point log2 value.
func IntrinsicLogS(powHash common.Hash) *big.Int {
	x := powHash.Big()
	if x.Sign() == 0 {
		return common.LogBig(common.Big2e256)
	}
	d := new(big.Int).Div(common.Big2e256, x)
	return common.LogBig(d)
}

// VerifySeal recomputes the progpow digests of a sealed header and checks the
// mix digest and the target. The final digest is returned when it is valid.
func (progpow *Progpow) VerifySeal(headerHash common.Hash, nonce uint64, height uint64, mixDigest common.Hash, target common.Hash) (common.Hash, error) {
	result, err := progpow.ComputePowLight(headerHash, nonce, height)
	if err != nil {
		return common.Hash{}, err
	}
	// Verify the calculated values against the ones provided in the header
	if !bytes.Equal(mixDigest.Bytes(), result.MixDigest.Bytes()) {
		return common.Hash{}, ErrInvalidMixDigest
	}
	if !MeetsTarget(result.Digest, target) {
		return result.Digest, ErrInvalidPoW
	}
	return result.Digest, nil
}
