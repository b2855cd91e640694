package server

import (
	"sync"

	"github.com/modbuslabs/gomodbus/common"
)

// DeviceRegistry holds one DataStore per device id behind a single RW lock
// guarding the map itself; each contained MemoryStore guards all of its
// data with its own single lock.
// Ref: spec component "Register store" - "In-memory map per device id...
// add/remove_device uses a concurrent map with atomic insert-if-absent
// semantics."
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[common.UnitID]common.DataStore
	events  *common.EventDispatcher
}

// NewDeviceRegistry creates an empty device registry. Writes performed
// through stores obtained via AddDevice are wrapped so that successful
// writes emit InputWritten/RegisterWritten events on the given dispatcher;
// a nil dispatcher disables event emission.
func NewDeviceRegistry(events *common.EventDispatcher) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[common.UnitID]common.DataStore),
		events:  events,
	}
}

// AddDevice registers a fresh in-memory store for id if one is not already
// present (insert-if-absent) and returns the store backing that device,
// whether newly created or pre-existing.
func (r *DeviceRegistry) AddDevice(id common.UnitID) common.DataStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.devices[id]; ok {
		return store
	}
	store := newEventingStore(NewMemoryStore(), id, r.events)
	r.devices[id] = store
	return store
}

// AddDeviceStore registers an explicit DataStore for id, wrapping it for
// event emission. Returns ErrDeviceAlreadyExists if id is already present.
func (r *DeviceRegistry) AddDeviceStore(id common.UnitID, store common.DataStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; ok {
		return common.ErrDeviceAlreadyExists
	}
	r.devices[id] = newEventingStore(store, id, r.events)
	return nil
}

// RemoveDevice unregisters a device id. A no-op if the id is not present.
func (r *DeviceRegistry) RemoveDevice(id common.UnitID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// Get returns the store for id, and whether it is registered.
func (r *DeviceRegistry) Get(id common.UnitID) (common.DataStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.devices[id]
	return store, ok
}

// DeviceIDs returns the currently registered device ids in no particular
// order.
func (r *DeviceRegistry) DeviceIDs() []common.UnitID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]common.UnitID, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}
