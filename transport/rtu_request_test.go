package transport

import (
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTURequestEncode(t *testing.T) {
	req := NewRTURequest(17, common.FuncReadHoldingRegisters, []byte{0x00, 0x6B, 0x00, 0x03})

	frame, err := req.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87}, frame)
}

func TestRTURequestDecode(t *testing.T) {
	frame := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87}

	req := &RTURequest{}
	require.NoError(t, req.Decode(frame))

	assert.Equal(t, common.UnitID(17), req.GetUnitID())
	assert.Equal(t, common.FuncReadHoldingRegisters, req.GetPDU().FunctionCode)
	assert.Equal(t, []byte{0x00, 0x6B, 0x00, 0x03}, req.GetPDU().Data)
}

func TestRTURequestDecodeShortFrame(t *testing.T) {
	req := &RTURequest{}
	assert.Equal(t, common.ErrShortFrame, req.Decode([]byte{0x11, 0x03}))
}

func TestRTURequestDecodeCRCMismatch(t *testing.T) {
	frame := []byte{0x11, 0x03, 0x00, 0x6C, 0x00, 0x03, 0x00, 0x00}
	req := &RTURequest{}
	assert.Equal(t, common.ErrCRCMismatch, req.Decode(frame))
}

func TestRTURequestTransactionIDAlwaysZero(t *testing.T) {
	req := NewRTURequest(1, common.FuncReadCoils, []byte{0x00, 0x00, 0x00, 0x01})
	req.SetTransactionID(42)
	assert.Equal(t, common.TransactionID(0), req.GetTransactionID(), "RTU has no wire transaction id")
}
