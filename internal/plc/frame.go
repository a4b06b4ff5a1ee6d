package plc

import (
	"encoding/binary"
	"fmt"
)

// MBAP Header (7 Bytes) + Function Code + Data
type Frame struct {
	TransactionID uint16 // 2 Bytes - Request/Response Korrelation
	ProtocolID    uint16 // 2 Bytes - Immer 0x0000 für Modbus
	Length        uint16 // 2 Bytes - Anzahl folgender Bytes
	UnitID        uint8  // 1 Byte - Slave Address
	FunctionCode  uint8  // 1 Byte - Modbus Function
	Data          []byte // Variable Länge
}

// Modbus Function Codes
const (
	FuncCodeReadCoils          = 0x01
	FuncCodeReadDiscreteInputs = 0x02
	FuncCodeWriteSingleCoil    = 0x05

	exceptionBit = 0x80
)

// Coil values for Write Single Coil (0x05)
const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// Encode erstellt das komplette TCP Frame
func (f *Frame) Encode() []byte {
	// PDU Length = Function Code (1) + Data
	f.Length = uint16(len(f.Data) + 2) // +2 für UnitID + FunctionCode

	frame := make([]byte, 7+len(f.Data)+1) // MBAP(7) + FuncCode(1) + Data

	// MBAP Header
	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	// PDU
	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parst ein empfangenes Frame
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &Frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	// Validate Protocol ID
	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}

	if len(data) > 8 {
		frame.Data = data[8:]
	}

	return frame, nil
}

// IsException reports whether the response carries a Modbus exception.
func (f *Frame) IsException() bool {
	return f.FunctionCode&exceptionBit != 0
}

// ExceptionCode returns the exception code of an error response.
func (f *Frame) ExceptionCode() uint8 {
	if !f.IsException() || len(f.Data) == 0 {
		return 0
	}
	return f.Data[0]
}

// ReadCoilsRequest erstellt Request für Function Code 0x01
func ReadCoilsRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &Frame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeReadCoils,
		Data:          data,
	}
}

// ReadDiscreteInputsRequest erstellt Request für Function Code 0x02
func ReadDiscreteInputsRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &Frame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeReadDiscreteInputs,
		Data:          data,
	}
}

// WriteSingleCoilRequest erstellt Request für Function Code 0x05
func WriteSingleCoilRequest(transactionID uint16, unitID uint8, addr uint16, value bool) *Frame {
	coilValue := coilOff
	if value {
		coilValue = coilOn
	}

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], coilValue)

	return &Frame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeWriteSingleCoil,
		Data:          data,
	}
}

// ParseBitResponse parst Coil/Discrete Input Responses (0x01/0x02).
// quantity limits the number of returned bits, the wire format pads to
// full bytes.
func (f *Frame) ParseBitResponse(quantity int) ([]bool, error) {
	if f.IsException() {
		return nil, fmt.Errorf("modbus exception 0x%02X", f.ExceptionCode())
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data")
	}
	if quantity > byteCount*8 {
		return nil, fmt.Errorf("response carries %d bits, expected %d", byteCount*8, quantity)
	}

	bits := make([]bool, quantity)
	for i := 0; i < quantity; i++ {
		b := f.Data[1+i/8]
		bits[i] = b&(1<<uint(i%8)) != 0
	}

	return bits, nil
}
