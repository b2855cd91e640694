package transport

import "github.com/modbuslabs/gomodbus/common"

// RTUResponse implements common.Response for the RTU wire format.
type RTUResponse struct {
	UnitID common.UnitID
	PDU    *common.PDU
}

// NewRTUResponse creates a new RTUResponse.
func NewRTUResponse(unitID common.UnitID, functionCode common.FunctionCode, data []byte) *RTUResponse {
	return &RTUResponse{
		UnitID: unitID,
		PDU: &common.PDU{
			FunctionCode: functionCode,
			Data:         data,
		},
	}
}

// GetTransactionID always returns 0; RTU has no transaction id.
func (r *RTUResponse) GetTransactionID() common.TransactionID { return 0 }

// GetUnitID returns the responding device id.
func (r *RTUResponse) GetUnitID() common.UnitID { return r.UnitID }

// GetPDU returns the PDU.
func (r *RTUResponse) GetPDU() *common.PDU { return r.PDU }

// IsException reports whether the function code's exception bit is set.
func (r *RTUResponse) IsException() bool {
	return common.IsFunctionException(r.PDU.FunctionCode)
}

// GetException returns the exception code carried in the first data byte.
// Ref: spec "RTU response" - "If function's high bit (0x80) is set, the
// next byte is the error code."
func (r *RTUResponse) GetException() common.ExceptionCode {
	if r.IsException() && len(r.PDU.Data) > 0 {
		return common.ExceptionCode(r.PDU.Data[0])
	}
	return 0
}

// ToError converts an exception response into a *common.ModbusError.
func (r *RTUResponse) ToError() error {
	if r.IsException() {
		return common.NewModbusError(r.PDU.FunctionCode, r.GetException())
	}
	return nil
}

// Encode produces `[unit][function][data...][crcLo][crcHi]`.
func (r *RTUResponse) Encode() ([]byte, error) {
	frame := make([]byte, 0, 2+len(r.PDU.Data)+2)
	frame = append(frame, byte(r.UnitID), byte(r.PDU.FunctionCode))
	frame = append(frame, r.PDU.Data...)
	return AppendCRC(frame), nil
}

// Decode parses a complete RTU response frame.
// Ref: spec "RTU response."
func (r *RTUResponse) Decode(frame []byte) error {
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
