package client

import (
	"context"
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/common/test"
	"github.com/modbuslabs/gomodbus/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTURequestFactoryBuildsRTUFramedRequest(t *testing.T) {
	mockTransport := test.NewMockTransport()
	c := NewBaseClient(mockTransport, WithUnitID(17), WithRequestFactory(rtuRequestFactory))

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	mockTransport.QueueResponse(transport.NewRTUResponse(17, common.FuncReadHoldingRegisters,
		[]byte{0x06, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03}))

	values, err := c.ReadHoldingRegisters(ctx, 108, 3)
	require.NoError(t, err)
	assert.Len(t, values, 3)

	requests := mockTransport.GetRequests()
	require.Len(t, requests, 1)

	rtuReq, ok := requests[0].(*transport.RTURequest)
	require.True(t, ok, "request type = %T, want *transport.RTURequest", requests[0])
	assert.Equal(t, common.UnitID(17), rtuReq.GetUnitID())
}

func TestNewRTUClientDefaultUnitID(t *testing.T) {
	c := NewRTUClient("/dev/ttyDoesNotExist")
	assert.Equal(t, common.MinRTUUnitID, c.unitID)
}

func TestWithRTUUnitIDRejectsBroadcast(t *testing.T) {
	c := NewRTUClient("/dev/ttyDoesNotExist")
	c.WithOptions(WithRTUUnitID(0))

	assert.Equal(t, common.MinRTUUnitID, c.unitID, "broadcast id 0 must be substituted")
}
