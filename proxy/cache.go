package proxy

import (
	"sync"
	"time"

	"github.com/modbuslabs/gomodbus/common"
)

// MinFreshnessWindow is the lowest freshness window the proxy will honor.
// Ref: spec component "Proxy" - "freshness window is clamped to a
// minimum of 200 ms."
const MinFreshnessWindow = 200 * time.Millisecond

// registerClass identifies which of the four register classes a cache
// entry belongs to.
type registerClass int

const (
	classCoil registerClass = iota
	classDiscreteInput
	classHoldingRegister
	classInputRegister
)

// cacheEntry holds one cached address's value and the wall-clock instant
// it was last refreshed from the back end.
// Ref: spec component "Proxy cache entry" - "{ timestamp: instant, value:
// bool | u16 }. Lifecycle: written when a back-end read or write
// succeeds; read by subsequent requests; no explicit eviction — entries
// are ignored when now - timestamp > freshness_window."
type cacheEntry struct {
	timestamp time.Time
	value     uint16
}

func (e cacheEntry) fresh(now time.Time, window time.Duration) bool {
	return now.Sub(e.timestamp) <= window
}

// classCache is a freshness-windowed address->value map for one register
// class, with its own RW lock.
// Ref: spec component "Shared resources" - "Proxy device map: guarded by
// a single RW lock; device entries contain their own per-class RW
// locks."
type classCache struct {
	mutex   sync.RWMutex
	entries map[common.Address]cacheEntry
}

func newClassCache() *classCache {
	return &classCache{entries: make(map[common.Address]cacheEntry)}
}

// readRange returns the cached values for [address, address+quantity) and
// true only if every one of them is present and fresh as of now.
func (c *classCache) readRange(address common.Address, quantity common.Quantity, now time.Time, window time.Duration) ([]uint16, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.readRangeLocked(address, quantity, now, window)
}

// readRangeLocked is readRange without acquiring the lock itself, for
// callers that already hold c.mutex (read or write side).
func (c *classCache) readRangeLocked(address common.Address, quantity common.Quantity, now time.Time, window time.Duration) ([]uint16, bool) {
	values := make([]uint16, quantity)
	for i := common.Quantity(0); i < quantity; i++ {
		entry, ok := c.entries[address+common.Address(i)]
		if !ok || !entry.fresh(now, window) {
			return nil, false
		}
		values[i] = entry.value
	}
	return values, true
}

// writeRange stores values starting at address, stamped with now.
func (c *classCache) writeRange(address common.Address, values []uint16, now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i, value := range values {
		c.entries[address+common.Address(i)] = cacheEntry{timestamp: now, value: value}
	}
}

// deviceCache holds the four per-class caches for one device id.
type deviceCache struct {
	coils            *classCache
	discreteInputs   *classCache
	holdingRegisters *classCache
	inputRegisters   *classCache
}

func newDeviceCache() *deviceCache {
	return &deviceCache{
		coils:            newClassCache(),
		discreteInputs:   newClassCache(),
		holdingRegisters: newClassCache(),
		inputRegisters:   newClassCache(),
	}
}

func (d *deviceCache) forClass(class registerClass) *classCache {
	switch class {
	case classCoil:
		return d.coils
	case classDiscreteInput:
		return d.discreteInputs
	case classHoldingRegister:
		return d.holdingRegisters
	case classInputRegister:
		return d.inputRegisters
	default:
		return d.holdingRegisters
	}
}

func boolToWord(v bool) uint16 {
	if v {
		return 1
	}
	return 0
}
