package transport

import "github.com/modbuslabs/gomodbus/common"

// rtuRequestHeaderLen is how many leading bytes of an RTU request frame a
// reader must have before RTURequestFrameLength can resolve the total
// frame length for every function code in scope.
const rtuRequestHeaderLen = 11

// RTURequestFrameLength inspects the leading bytes of an RTU request
// frame (address, function code, and however much of the body has been
// read so far) and reports the total frame length including the CRC
// trailer. ok is false when header does not yet carry enough bytes;
// headerNeeded then tells the caller how many bytes to read before
// calling again.
// Ref: spec "RTU decode (request)."
func RTURequestFrameLength(header []byte) (length int, headerNeeded int, ok bool) {
	if len(header) < 2 {
		return 0, 2, false
	}
	switch common.FunctionCode(header[1]) {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs, common.FuncReadHoldingRegisters,
		common.FuncReadInputRegisters, common.FuncWriteSingleCoil, common.FuncWriteSingleRegister:
		// [addr][fn][addrHi][addrLo][p3][p4] + crc(2)
		return 8, 8, true
	case common.FuncReadDeviceIdentification:
		// [addr][fn][MEItype][readDeviceIDCode][objectID] + crc(2)
		return 7, 7, true
	case common.FuncWriteMultipleCoils, common.FuncWriteMultipleRegisters:
		if len(header) < 7 {
			return 0, 7, false
		}
		byteCount := int(header[6])
		return 7 + byteCount + 2, 7 + byteCount + 2, true
	case common.FuncReadWriteMultipleRegisters:
		if len(header) < rtuRequestHeaderLen {
			return 0, rtuRequestHeaderLen, false
		}
		byteCount := int(header[10])
		return rtuRequestHeaderLen + byteCount + 2, rtuRequestHeaderLen + byteCount + 2, true
	default:
		return 0, 0, false
	}
}

// RTUResponseFrameLength inspects the leading bytes of an RTU response
// frame and, knowing the function code the request asked for, reports
// the total frame length. Exception responses (function code with the
// high bit set) are always 5 bytes regardless of the requested function.
// ReadDeviceIdentification responses carry a variable list of objects
// and cannot be sized from a fixed prefix; callers must read it
// object-by-object (see readDeviceIdentificationResponse in the RTU
// transport).
// Ref: spec "RTU response" and the "EncapsulatedInterface length
// decoding" open question: frame = [unit][fn][byteCount][data...][crc
// lo][crc hi] => total = byteCount + 3 + 2.
func RTUResponseFrameLength(requested common.FunctionCode, header []byte) (length int, headerNeeded int, ok bool) {
	if len(header) < 2 {
		return 0, 2, false
	}
	fc := common.FunctionCode(header[1])
	if common.IsFunctionException(fc) {
		return 5, 5, true
	}
	switch requested {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs, common.FuncReadHoldingRegisters,
		common.FuncReadInputRegisters:
		if len(header) < 3 {
			return 0, 3, false
		}
		byteCount := int(header[2])
		return byteCount + 3 + 2, byteCount + 3 + 2, true
	case common.FuncWriteSingleCoil, common.FuncWriteSingleRegister,
		common.FuncWriteMultipleCoils, common.FuncWriteMultipleRegisters:
		// Echo responses: [addr][fn][addrHi][addrLo][p3][p4] + crc(2)
		return 8, 8, true
	case common.FuncReadWriteMultipleRegisters:
		if len(header) < 3 {
			return 0, 3, false
		}
		byteCount := int(header[2])
		return byteCount + 3 + 2, byteCount + 3 + 2, true
	default:
		return 0, 0, false
	}
}
