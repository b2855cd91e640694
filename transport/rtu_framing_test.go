package transport

import (
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTURequestFrameLengthFixedSize(t *testing.T) {
	header := []byte{0x11, byte(common.FuncReadHoldingRegisters)}
	length, needed, ok := RTURequestFrameLength(header)
	require.True(t, ok)
	assert.Equal(t, 8, length)
	assert.Equal(t, 8, needed)
}

func TestRTURequestFrameLengthNeedsMoreHeader(t *testing.T) {
	header := []byte{0x11, byte(common.FuncWriteMultipleRegisters)}
	_, needed, ok := RTURequestFrameLength(header)
	assert.False(t, ok)
	assert.Equal(t, 7, needed)
}

func TestRTURequestFrameLengthWriteMultipleRegisters(t *testing.T) {
	// addr=1, fn=WriteMultipleRegisters, startAddr=0x0000, qty=0x0002, byteCount=4
	header := []byte{0x01, byte(common.FuncWriteMultipleRegisters), 0x00, 0x00, 0x00, 0x02, 0x04}
	length, needed, ok := RTURequestFrameLength(header)
	require.True(t, ok)
	want := 7 + 4 + 2
	assert.Equal(t, want, length)
	assert.Equal(t, want, needed)
}

func TestRTURequestFrameLengthReadWriteMultipleRegisters(t *testing.T) {
	header := make([]byte, rtuRequestHeaderLen)
	header[1] = byte(common.FuncReadWriteMultipleRegisters)
	header[10] = 6 // byte count

	length, needed, ok := RTURequestFrameLength(header)
	require.True(t, ok)
	want := rtuRequestHeaderLen + 6 + 2
	assert.Equal(t, want, length)
	assert.Equal(t, want, needed)
}

func TestRTUResponseFrameLengthException(t *testing.T) {
	header := []byte{0x11, byte(common.FuncReadHoldingRegisters) | 0x80}
	length, needed, ok := RTUResponseFrameLength(common.FuncReadHoldingRegisters, header)
	require.True(t, ok)
	assert.Equal(t, 5, length)
	assert.Equal(t, 5, needed)
}

func TestRTUResponseFrameLengthReadClass(t *testing.T) {
	header := []byte{0x11, byte(common.FuncReadHoldingRegisters), 0x06}
	length, needed, ok := RTUResponseFrameLength(common.FuncReadHoldingRegisters, header)
	require.True(t, ok)
	want := 6 + 3 + 2
	assert.Equal(t, want, length)
	assert.Equal(t, want, needed)
}

func TestRTUResponseFrameLengthWriteEcho(t *testing.T) {
	header := []byte{0x11, byte(common.FuncWriteSingleRegister)}
	length, needed, ok := RTUResponseFrameLength(common.FuncWriteSingleRegister, header)
	require.True(t, ok)
	assert.Equal(t, 8, length)
	assert.Equal(t, 8, needed)
}

func TestRTUResponseFrameLengthDeviceIdentificationUnsupported(t *testing.T) {
	header := []byte{0x11, byte(common.FuncReadDeviceIdentification)}
	_, _, ok := RTUResponseFrameLength(common.FuncReadDeviceIdentification, header)
	assert.False(t, ok, "ReadDeviceIdentification requires object-by-object reading instead")
}
