package transport

import (
	"time"

	"github.com/modbuslabs/gomodbus/common"
)

// RTURequest implements common.Request for the RTU wire format. The PDU
// bytes (function code + function-specific data) are identical to what
// the MBAP Request carries; only the framing differs — address byte and
// CRC-16 trailer instead of an MBAP header.
// Ref: spec "Frame codec" - "MBAP encode. Same PDU bytes as RTU but
// prefixed with the 7-byte MBAP header and no CRC."
type RTURequest struct {
	UnitID common.UnitID
	PDU    *common.PDU
	Create time.Time
}

// NewRTURequest creates a new RTURequest.
func NewRTURequest(unitID common.UnitID, functionCode common.FunctionCode, data []byte) *RTURequest {
	return &RTURequest{
		UnitID: unitID,
		PDU: &common.PDU{
			FunctionCode: functionCode,
			Data:         data,
		},
		Create: time.Now(),
	}
}

// GetTransactionID always returns 0. RTU has no transaction id on the
// wire; the transport correlates by send-mutex, not by id.
func (r *RTURequest) GetTransactionID() common.TransactionID { return 0 }

// SetTransactionID is a no-op for RTU, kept to satisfy common.Request.
func (r *RTURequest) SetTransactionID(common.TransactionID) {}

// GetUnitID returns the device id this request targets.
func (r *RTURequest) GetUnitID() common.UnitID { return r.UnitID }

// GetPDU returns the PDU.
func (r *RTURequest) GetPDU() *common.PDU { return r.PDU }

// Encode produces `[unit][function][data...][crcLo][crcHi]`.
// Ref: spec "RTU encode (request)."
func (r *RTURequest) Encode() ([]byte, error) {
	frame := make([]byte, 0, 2+len(r.PDU.Data)+2)
	frame = append(frame, byte(r.UnitID), byte(r.PDU.FunctionCode))
	frame = append(frame, r.PDU.Data...)
	return AppendCRC(frame), nil
}

// Decode parses a complete RTU request frame (address byte through the
// CRC trailer, no leading/trailing garbage). The caller is responsible
// for first locating frame boundaries on the wire.
// Ref: spec "RTU decode (request)."
func (r *RTURequest) Decode(frame []byte) error {
	if len(frame) < 4 {
		return common.ErrShortFrame
	}
	if !CheckCRC(frame) {
		return common.ErrCRCMismatch
	}
	r.UnitID = common.UnitID(frame[0])
	r.PDU = &common.PDU{
		FunctionCode: common.FunctionCode(frame[1]),
		Data:         append([]byte(nil), frame[2:len(frame)-2]...),
	}
	return nil
}

// GetLifetime returns how long ago this request was created.
func (r *RTURequest) GetLifetime() time.Duration {
	return time.Since(r.Create)
}

// Cancel satisfies the transaction machinery shared with TCP; RTU has no
// in-flight transaction bookkeeping to clean up.
func (r *RTURequest) Cancel(err error) {}
