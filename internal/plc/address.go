package plc

import (
	"fmt"
	"strconv"
	"strings"
)

// LOGO Modbus address bases. Q1 maps to 8192, M1 to 8256; discrete
// inputs I1-I8 occupy addresses 0-7.
const (
	OutputBase uint16 = 8192
	MarkBase   uint16 = 8256

	OutputCount = 12
	MarkCount   = 64
	InputCount  = 8
)

// ParseCoilAddress maps a symbolic coil name ("Q1".."Q12", "M1".."M64")
// to its Modbus register address. Invalid names are rejected before any
// I/O is attempted.
func ParseCoilAddress(symbol string) (uint16, error) {
	if len(symbol) < 2 {
		return 0, fmt.Errorf("invalid coil address: %q", symbol)
	}

	kind := strings.ToUpper(symbol[:1])
	index, err := strconv.Atoi(symbol[1:])
	if err != nil {
		return 0, fmt.Errorf("invalid coil index in %q: %w", symbol, err)
	}

	switch kind {
	case "Q":
		if index < 1 || index > OutputCount {
			return 0, fmt.Errorf("output index out of range: %d (must be 1-%d)", index, OutputCount)
		}
		return OutputBase + uint16(index-1), nil
	case "M":
		if index < 1 || index > MarkCount {
			return 0, fmt.Errorf("mark index out of range: %d (must be 1-%d)", index, MarkCount)
		}
		return MarkBase + uint16(index-1), nil
	default:
		return 0, fmt.Errorf("invalid coil type %q (must be 'Q' or 'M')", kind)
	}
}
