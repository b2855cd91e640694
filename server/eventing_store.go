package server

import (
	"context"

	"github.com/modbuslabs/gomodbus/common"
)

// eventingStore decorates a common.DataStore so that successful writes
// raise InputWritten (coils) or RegisterWritten (registers) events on a
// shared dispatcher. Reads pass straight through.
// Ref: spec "Register store" - "Events: InputWritten(device_id,
// coil-or-coils) and RegisterWritten(device_id, register-or-registers) are
// emitted after a successful write; subscribers run on a best-effort
// basis and must not block the session."
type eventingStore struct {
	inner    common.DataStore
	deviceID common.UnitID
	events   *common.EventDispatcher
}

func newEventingStore(inner common.DataStore, deviceID common.UnitID, events *common.EventDispatcher) common.DataStore {
	return &eventingStore{inner: inner, deviceID: deviceID, events: events}
}

func (s *eventingStore) emit(ev common.Event) {
	if s.events == nil {
		return
	}
	ev.DeviceID = s.deviceID
	s.events.Emit(ev)
}

func (s *eventingStore) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	return s.inner.ReadCoils(ctx, address, quantity)
}

func (s *eventingStore) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	return s.inner.ReadDiscreteInputs(ctx, address, quantity)
}

func (s *eventingStore) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	return s.inner.ReadHoldingRegisters(ctx, address, quantity)
}

func (s *eventingStore) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	return s.inner.ReadInputRegisters(ctx, address, quantity)
}

func (s *eventingStore) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	if err := s.inner.WriteSingleCoil(ctx, address, value); err != nil {
		return err
	}
	s.emit(common.Event{Type: common.EventInputWritten, Address: address, Coils: []common.CoilValue{value}})
	return nil
}

func (s *eventingStore) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	if err := s.inner.WriteSingleRegister(ctx, address, value); err != nil {
		return err
	}
	s.emit(common.Event{Type: common.EventRegisterWritten, Address: address, Registers: []common.RegisterValue{value}})
	return nil
}

func (s *eventingStore) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	if err := s.inner.WriteMultipleCoils(ctx, address, values); err != nil {
		return err
	}
	s.emit(common.Event{Type: common.EventInputWritten, Address: address, Coils: values})
	return nil
}

func (s *eventingStore) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	if err := s.inner.WriteMultipleRegisters(ctx, address, values); err != nil {
		return err
	}
	s.emit(common.Event{Type: common.EventRegisterWritten, Address: address, Registers: values})
	return nil
}
