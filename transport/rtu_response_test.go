package transport

import (
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTUResponseEncodeDecodeRoundTrip(t *testing.T) {
	resp := NewRTUResponse(17, common.FuncReadHoldingRegisters, []byte{0x06, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03})

	frame, err := resp.Encode()
	require.NoError(t, err)

	decoded := &RTUResponse{}
	require.NoError(t, decoded.Decode(frame))

	assert.Equal(t, resp.GetUnitID(), decoded.GetUnitID())
	assert.Equal(t, resp.GetPDU().FunctionCode, decoded.GetPDU().FunctionCode)
}

func TestRTUResponseException(t *testing.T) {
	exceptionFC := common.FuncReadHoldingRegisters | 0x80
	resp := NewRTUResponse(17, exceptionFC, []byte{byte(common.ExceptionDataAddressNotAvailable)})

	assert.True(t, resp.IsException())
	assert.Equal(t, common.ExceptionDataAddressNotAvailable, resp.GetException())
	assert.Error(t, resp.ToError())
}

func TestRTUResponseDecodeCRCMismatch(t *testing.T) {
	resp := &RTUResponse{}
	frame := []byte{0x11, 0x03, 0x02, 0x00, 0x01, 0xFF, 0xFF}
	assert.Equal(t, common.ErrCRCMismatch, resp.Decode(frame))
}
