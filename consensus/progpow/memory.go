package progpow

import (
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dominant-strategies/go-progpow/common"
	"github.com/dominant-strategies/go-progpow/log"
)

// virtualMemory is swapped out by tests.
var virtualMemory = mem.VirtualMemory

// ensureMemory fails with ErrResourceExhausted when the host does not have
// size bytes available for the named buffer. A host that cannot be probed is
// assumed to have enough.
func ensureMemory(what string, size uint64, logger *log.Logger) error {
	stat, err := virtualMemory()
	if err != nil {
		logger.WithField("err", err).Warn("Failed to probe available memory")
		return nil
	}
	if stat.Available < size {
		logger.WithFields(log.Fields{
			"buffer":    what,
			"required":  common.StorageSize(size),
			"available": common.StorageSize(stat.Available),
		}).Error("Insufficient memory for progpow buffer")
		return errors.Wrapf(ErrResourceExhausted, "%s needs %v, %v available", what,
			common.StorageSize(size), common.StorageSize(stat.Available))
	}
	return nil
}
