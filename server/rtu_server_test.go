package server

import (
	"context"
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/common/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRTUServerDefaults(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")

	assert.Equal(t, 19200, s.mode.BaudRate)
	assert.Equal(t, DefaultRTUReadTimeout, s.readTimeout)
	assert.False(t, s.IsRunning(), "a freshly constructed server should not be running")

	for _, fc := range []common.FunctionCode{
		common.FuncReadCoils, common.FuncReadDiscreteInputs, common.FuncReadHoldingRegisters,
		common.FuncReadInputRegisters, common.FuncWriteSingleCoil, common.FuncWriteSingleRegister,
		common.FuncWriteMultipleCoils, common.FuncWriteMultipleRegisters,
		common.FuncReadWriteMultipleRegisters, common.FuncReadDeviceIdentification,
	} {
		_, exists := s.handlers[fc]
		assert.True(t, exists, "default handlers missing function code %v", fc)
	}
}

func TestRTUServerOptionsOverrideDefaults(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist", WithRTUServerBaudRate(9600))
	assert.Equal(t, 9600, s.mode.BaudRate)
}

func TestRTUServerAddDeviceAndStoreFor(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")

	store := s.AddDevice(5)
	require.NotNil(t, store)

	found, ok := s.storeFor(5)
	require.True(t, ok)
	assert.NotNil(t, found)

	_, ok = s.storeFor(6)
	assert.False(t, ok, "no fallback store is configured, so an unregistered id must miss")
}

func TestRTUServerStoreForFallsBackToDataStore(t *testing.T) {
	fallback := NewMemoryStore()
	s := NewRTUServer("/dev/ttyDoesNotExist", WithRTUServerDataStore(fallback))

	found, ok := s.storeFor(42)
	require.True(t, ok)
	assert.Same(t, fallback, found)
}

func TestRTUServerAddDeviceStoreRejectsDuplicate(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")
	s.AddDevice(1)

	err := s.AddDeviceStore(1, NewMemoryStore())
	assert.Equal(t, common.ErrDeviceAlreadyExists, err)
}

func TestRTUServerRemoveDevice(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")
	s.AddDevice(1)
	s.RemoveDevice(1)

	_, ok := s.storeFor(1)
	assert.False(t, ok)
}

func TestRTUServerDispatchRequestUnknownFunctionCode(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")
	req := test.NewMockRequest(0, 1, common.FunctionCode(0x99), nil)

	_, err := s.dispatchRequest(context.Background(), req)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok, "dispatchRequest() error = %v, want *common.ModbusError", err)
	assert.Equal(t, common.ExceptionFunctionCodeNotSupported, modbusErr.ExceptionCode)
}

func TestRTUServerDispatchRequestReturnsUnknownDeviceForUnregisteredUnit(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")
	req := test.NewMockRequest(0, 7, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})

	_, err := s.dispatchRequest(context.Background(), req)
	assert.Equal(t, common.ErrUnknownDevice, err)
}

func TestRTUServerStopWhenNotRunningIsNoop(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")
	assert.NoError(t, s.Stop(context.Background()))
}

func TestRTUServerSetHandlerOverridesDefault(t *testing.T) {
	s := NewRTUServer("/dev/ttyDoesNotExist")
	called := false
	s.SetHandler(common.FuncReadCoils, func(ctx context.Context, req common.Request) (common.Response, error) {
		called = true
		return test.NewMockResponse(0, req.GetUnitID(), common.FuncReadCoils, nil), nil
	})

	req := test.NewMockRequest(0, 1, common.FuncReadCoils, []byte{0x00, 0x00, 0x00, 0x01})
	_, err := s.dispatchRequest(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, called, "SetHandler() override was not invoked")
}
