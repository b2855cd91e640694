package proxy

import (
	"context"
	"time"

	"github.com/modbuslabs/gomodbus/common"
)

// backendTimeNow is overridden in tests; production code always uses
// time.Now. Kept as a var rather than passed through every call so the
// common.DataStore signatures stay identical to every other store.
var backendTimeNow = time.Now

// deviceStore implements common.DataStore for one device id, serving
// reads from a freshness-windowed cache and falling through to a
// back-end common.Client on a miss.
// Ref: spec component "Proxy" - "the proxy composes a server (front) and
// a client (back) sharing a per-(device-id) cache of four register
// classes."
type deviceStore struct {
	unitID   common.UnitID
	backend  common.Client
	cache    *deviceCache
	freshFor time.Duration
	logger   common.LoggerInterface
}

func newDeviceStore(unitID common.UnitID, backend common.Client, freshFor time.Duration, logger common.LoggerInterface) *deviceStore {
	if freshFor < MinFreshnessWindow {
		freshFor = MinFreshnessWindow
	}
	return &deviceStore{
		unitID:   unitID,
		backend:  backend,
		cache:    newDeviceCache(),
		freshFor: freshFor,
		logger:   logger,
	}
}

// readThrough implements the double-checked read-through policy shared by
// all four read operations: a first pass under a read lock serves fully
// fresh ranges from cache; a miss re-checks under a write lock before
// falling through to the back end, to avoid a thundering herd of
// concurrent refetches for the same range.
// Ref: spec component "Proxy" - "Reads: under a read-lock, assemble
// values whose cached timestamp is within the freshness window; if all
// requested addresses are fresh, respond from cache. Otherwise, under a
// write-lock, re-check (double-checked read-through), then call the
// back-end client, store the returned values, and respond. A back-end
// failure is mapped to SlaveDeviceFailure."
func (s *deviceStore) readThrough(ctx context.Context, class registerClass, address common.Address, quantity common.Quantity, fetch func(ctx context.Context) ([]uint16, error)) ([]uint16, error) {
	cc := s.cache.forClass(class)
	now := backendTimeNow()

	if values, ok := cc.readRange(address, quantity, now, s.freshFor); ok {
		return values, nil
	}

	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	now = backendTimeNow()
	if values, ok := cc.readRangeLocked(address, quantity, now, s.freshFor); ok {
		return values, nil
	}

	values, err := fetch(ctx)
	if err != nil {
		s.logger.Warn(ctx, "proxy: back-end read failed for unit %d: %v", s.unitID, err)
		return nil, common.ErrUpstreamUnavailable
	}

	for i, value := range values {
		cc.entries[address+common.Address(i)] = cacheEntry{timestamp: now, value: value}
	}

	return values, nil
}

// ReadCoils implements common.DataStore.
func (s *deviceStore) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	words, err := s.readThrough(ctx, classCoil, address, quantity, func(ctx context.Context) ([]uint16, error) {
		coils, err := s.backend.ReadCoils(ctx, address, quantity)
		if err != nil {
			return nil, err
		}
		words := make([]uint16, len(coils))
		for i, v := range coils {
			words[i] = boolToWord(v)
		}
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	values := make([]common.CoilValue, len(words))
	for i, w := range words {
		values[i] = w != 0
	}
	return values, nil
}

// ReadDiscreteInputs implements common.DataStore.
func (s *deviceStore) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	words, err := s.readThrough(ctx, classDiscreteInput, address, quantity, func(ctx context.Context) ([]uint16, error) {
		inputs, err := s.backend.ReadDiscreteInputs(ctx, address, quantity)
		if err != nil {
			return nil, err
		}
		words := make([]uint16, len(inputs))
		for i, v := range inputs {
			words[i] = boolToWord(v)
		}
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	values := make([]common.DiscreteInputValue, len(words))
	for i, w := range words {
		values[i] = w != 0
	}
	return values, nil
}

// ReadHoldingRegisters implements common.DataStore.
func (s *deviceStore) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	words, err := s.readThrough(ctx, classHoldingRegister, address, quantity, func(ctx context.Context) ([]uint16, error) {
		return s.backend.ReadHoldingRegisters(ctx, address, quantity)
	})
	if err != nil {
		return nil, err
	}
	return words, nil
}

// ReadInputRegisters implements common.DataStore.
func (s *deviceStore) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	words, err := s.readThrough(ctx, classInputRegister, address, quantity, func(ctx context.Context) ([]uint16, error) {
		return s.backend.ReadInputRegisters(ctx, address, quantity)
	})
	if err != nil {
		return nil, err
	}
	return words, nil
}

// WriteSingleCoil implements common.DataStore.
// Ref: spec component "Proxy" - "Writes: forward to the back-end client.
// On success, update the cache for the written addresses, then respond
// with an echo... On failure, respond with SlaveDeviceFailure."
func (s *deviceStore) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	if err := s.backend.WriteSingleCoil(ctx, address, value); err != nil {
		s.logger.Warn(ctx, "proxy: back-end write failed for unit %d: %v", s.unitID, err)
		return common.ErrUpstreamUnavailable
	}
	s.cache.coils.writeRange(address, []uint16{boolToWord(value)}, backendTimeNow())
	return nil
}

// WriteSingleRegister implements common.DataStore.
func (s *deviceStore) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	if err := s.backend.WriteSingleRegister(ctx, address, value); err != nil {
		s.logger.Warn(ctx, "proxy: back-end write failed for unit %d: %v", s.unitID, err)
		return common.ErrUpstreamUnavailable
	}
	s.cache.holdingRegisters.writeRange(address, []uint16{value}, backendTimeNow())
	return nil
}

// WriteMultipleCoils implements common.DataStore.
func (s *deviceStore) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	if err := s.backend.WriteMultipleCoils(ctx, address, values); err != nil {
		s.logger.Warn(ctx, "proxy: back-end write failed for unit %d: %v", s.unitID, err)
		return common.ErrUpstreamUnavailable
	}
	words := make([]uint16, len(values))
	for i, v := range values {
		words[i] = boolToWord(v)
	}
	s.cache.coils.writeRange(address, words, backendTimeNow())
	return nil
}

// WriteMultipleRegisters implements common.DataStore.
func (s *deviceStore) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	if err := s.backend.WriteMultipleRegisters(ctx, address, values); err != nil {
		s.logger.Warn(ctx, "proxy: back-end write failed for unit %d: %v", s.unitID, err)
		return common.ErrUpstreamUnavailable
	}
	s.cache.holdingRegisters.writeRange(address, values, backendTimeNow())
	return nil
}
