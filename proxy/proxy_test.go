package proxy

import (
	"context"
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/logging"
	"github.com/modbuslabs/gomodbus/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestProxy builds a Proxy with its device map populated directly,
// bypassing NewProxy's construction of a real back-end transport.
func newTestProxy(unitID common.UnitID, backend *fakeClient) *Proxy {
	return &Proxy{
		logger:  logging.NewNoopLogger(),
		devices: map[common.UnitID]*deviceStore{unitID: newDeviceStore(unitID, backend, MinFreshnessWindow, logging.NewNoopLogger())},
	}
}

func TestHandleReadDeviceIdentificationForwardsToBackend(t *testing.T) {
	backend := newFakeClient()
	p := newTestProxy(1, backend)

	req := transport.NewRequest(1, common.FuncReadDeviceIdentification, []byte{0x0E, byte(common.ReadDeviceIDBasic), 0x00})

	resp, err := p.handleReadDeviceIdentification(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, common.UnitID(1), resp.GetUnitID())
	assert.Equal(t, common.FuncReadDeviceIdentification, resp.GetPDU().FunctionCode)
}

func TestHandleReadDeviceIdentificationUnknownDevice(t *testing.T) {
	p := newTestProxy(1, newFakeClient())

	req := transport.NewRequest(99, common.FuncReadDeviceIdentification, []byte{0x0E, byte(common.ReadDeviceIDBasic), 0x00})
	_, err := p.handleReadDeviceIdentification(context.Background(), req)
	assert.Equal(t, common.ErrUnknownDevice, err)
}

func TestHandleReadDeviceIdentificationShortPDURejected(t *testing.T) {
	p := newTestProxy(1, newFakeClient())

	req := transport.NewRequest(1, common.FuncReadDeviceIdentification, []byte{0x0E})
	_, err := p.handleReadDeviceIdentification(context.Background(), req)
	assert.Error(t, err)
}

func TestBuildBackendTransportSelectsRTUFraming(t *testing.T) {
	_, newRequest := buildBackendTransport(Destination{RTU: true, SerialPort: "/dev/ttyDoesNotExist"})

	req := newRequest(1, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	_, ok := req.(*transport.RTURequest)
	assert.True(t, ok, "request type = %T, want *transport.RTURequest", req)
}

func TestBuildBackendTransportSelectsTCPFraming(t *testing.T) {
	_, newRequest := buildBackendTransport(Destination{Host: "127.0.0.1", Port: common.DefaultTCPPort})

	req := newRequest(1, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	_, ok := req.(*transport.Request)
	assert.True(t, ok, "request type = %T, want *transport.Request", req)
}
