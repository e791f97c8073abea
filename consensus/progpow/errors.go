package progpow

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceExhausted is returned when a cache or dataset buffer cannot be
	// allocated with the memory available on the host.
	ErrResourceExhausted = errors.New("insufficient memory for progpow buffer")

	// ErrNeedsRegenerate is returned by the dag store when a persisted cache or
	// dataset cannot be trusted and must be generated again.
	ErrNeedsRegenerate     = errors.New("persisted progpow data needs regeneration")
	ErrInvalidDumpMagic    = fmt.Errorf("%w: invalid dump magic", ErrNeedsRegenerate)
	ErrInvalidDumpRevision = fmt.Errorf("%w: invalid dump revision", ErrNeedsRegenerate)
	ErrDumpSizeMismatch    = fmt.Errorf("%w: dump size mismatch", ErrNeedsRegenerate)

	ErrInvalidHeaderLength = errors.New("header hash must be 32 bytes")
	ErrEpochMismatch       = errors.New("block is outside the epoch of the cache")
	ErrInvalidMixDigest    = errors.New("invalid mix digest")
	ErrInvalidPoW          = errors.New("invalid proof-of-work")
	ErrInvalidDifficulty   = errors.New("non-positive difficulty")
	ErrReleased            = errors.New("progpow buffer released")
)
