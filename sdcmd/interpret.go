package sdcmd

import (
	"strconv"
	"strings"
)

// Command is a parsed 48-bit host to card command frame.
type Command struct {
	StartBit    bool
	TransmitBit bool
	Index       uint8
	Argument    uint32
	CRC7        uint8
	EndBit      bool
}

// ParseCommand parses the fields of a 48-bit command frame.
func ParseCommand(bits []bool) Command {
	fr := newFieldReader(bits[:FrameLength])
	return Command{
		StartBit:    fr.flag(),
		TransmitBit: fr.flag(),
		Index:       uint8(fr.bits(6)),
		Argument:    uint32(fr.bits(32)),
		CRC7:        uint8(fr.bits(7)),
		EndBit:      fr.flag(),
	}
}

// Valid reports whether the framing bits of the command are correct.
// The CRC is not checked.
func (c Command) Valid() bool {
	return !c.StartBit && c.TransmitBit && c.EndBit
}

// IORWDirect is the argument of CMD52.
type IORWDirect struct {
	Write     bool
	Function  uint8
	RAW       bool // Read after write.
	Address   uint32
	WriteData uint8
}

// ParseIORWDirect decodes a CMD52 argument.
func ParseIORWDirect(arg uint32) IORWDirect {
	return IORWDirect{
		Write:     arg&(1<<31) != 0,
		Function:  uint8(arg>>28) & 0b111,
		RAW:       arg&(1<<27) != 0,
		Address:   (arg >> 9) & 0x1ffff,
		WriteData: uint8(arg),
	}
}

// IORWExtended is the argument of CMD53.
type IORWExtended struct {
	Write     bool
	Function  uint8
	BlockMode bool
	// IncAddress is the OP Code bit: incrementing instead of fixed address.
	IncAddress bool
	Address    uint32
	// Count is the block count in block mode or byte count in byte mode.
	Count uint16
}

// ParseIORWExtended decodes a CMD53 argument.
func ParseIORWExtended(arg uint32) IORWExtended {
	return IORWExtended{
		Write:      arg&(1<<31) != 0,
		Function:   uint8(arg>>28) & 0b111,
		BlockMode:  arg&(1<<27) != 0,
		IncAddress: arg&(1<<26) != 0,
		Address:    (arg >> 9) & 0x1ffff,
		Count:      uint16(arg & 0x1ff),
	}
}

// TransferRequest asks the decoder to follow a CMD53 data transfer. The
// payload travels on the monitored line and must not be framed as commands.
type TransferRequest struct {
	BlockMode bool
	// Count is the number of blocks in block mode, the number of bytes
	// in byte mode.
	Count uint32
}

// Interpretation is the human readable rendering of a frame.
type Interpretation struct {
	Info string
	// Err is set when framing bits or field values are invalid.
	Err bool
	// Transfer is non-nil when a CMD53 command starts a data transfer.
	Transfer *TransferRequest
}

// InterpretCommand renders a 48-bit command frame.
func InterpretCommand(bits []bool) Interpretation {
	cmd := ParseCommand(bits)
	var res Interpretation
	var sb strings.Builder
	if _, known := lookup(cmd.Index); known {
		sb.WriteString(CommandName(cmd.Index))
		sb.WriteString(" (CMD")
		sb.WriteString(strconv.Itoa(int(cmd.Index)))
		sb.WriteByte(')')
	} else {
		sb.WriteString("CMD")
		sb.WriteString(strconv.Itoa(int(cmd.Index)))
	}
	switch cmd.Index {
	case CmdIORWDirect:
		direct := ParseIORWDirect(cmd.Argument)
		if direct.Write {
			sb.WriteString(": Write: ")
			sb.WriteString(strconv.Itoa(int(direct.WriteData)))
		} else {
			sb.WriteString(": Read")
		}
		sb.WriteString(" Func")
		sb.WriteString(strconv.Itoa(int(direct.Function)))
		sb.WriteString(", Address 0x")
		sb.WriteString(strconv.FormatUint(uint64(direct.Address), 16))

	case CmdIORWExtended:
		ext := ParseIORWExtended(cmd.Argument)
		if ext.Write {
			sb.WriteString(": Write")
		} else {
			sb.WriteString(": Read")
		}
		sb.WriteString(" Func")
		sb.WriteString(strconv.Itoa(int(ext.Function)))
		if ext.IncAddress {
			sb.WriteString(", Inc Address 0x")
		} else {
			sb.WriteString(", Fix Address 0x")
		}
		sb.WriteString(strconv.FormatUint(uint64(ext.Address), 16))
		if ext.BlockMode {
			sb.WriteString(", BlockMode: ")
			sb.WriteString(strconv.Itoa(int(ext.Count)))
			sb.WriteString(" blocks")
		} else {
			sb.WriteString(", ByteMode: ")
			sb.WriteString(strconv.Itoa(int(ext.Count)))
			sb.WriteString(" bytes")
		}
		res.Transfer = &TransferRequest{BlockMode: ext.BlockMode, Count: uint32(ext.Count)}

	default:
		sb.WriteString(", arg:")
		sb.WriteString(strconv.FormatUint(uint64(cmd.Argument), 10))
	}
	if !cmd.Valid() {
		sb.WriteString(", ERROR")
		res.Err = true
	}
	res.Info = sb.String()
	return res
}

// responseInterpreters dispatches response rendering by kind. Kinds absent
// from the table render as "R<kind>".
var responseInterpreters = map[ResponseKind]func(bits []bool) Interpretation{
	RespNone:         InterpretStatus,
	RespStatus:       InterpretStatus,
	RespCIDOrCSD:     InterpretCIDOrCSD,
	RespOCR:          InterpretOCR,
	RespUnspecified5: InterpretR5,
}

// InterpretResponse renders a response frame that was expected to be of
// the given kind. bits must hold kind.Length() bits.
func InterpretResponse(kind ResponseKind, bits []bool) Interpretation {
	fn, ok := responseInterpreters[kind]
	if !ok {
		return Interpretation{Info: kind.String()}
	}
	return fn(bits)
}

func responseFramingOK(bits []bool) bool {
	return !bits[0] && !bits[1] && bits[len(bits)-1]
}

// InterpretStatus renders an R1 card status response.
func InterpretStatus(bits []bool) Interpretation {
	fr := newFieldReader(bits[:FrameLength])
	fr.bits(8) // Start, transmission and command index.
	status := uint32(fr.bits(32))
	ok := responseFramingOK(bits[:FrameLength])

	var sb strings.Builder
	sb.WriteString("R1, ")
	state := (status >> 9) & 0xf
	if int(state) < len(currentStates) {
		sb.WriteString(currentStates[state])
	} else {
		sb.WriteString("UNKNOWN (")
		sb.WriteString(strconv.Itoa(int(state)))
		sb.WriteByte(')')
		ok = false
	}
	for i, flag := range StatusFlags {
		if status&(1<<(31-i)) != 0 {
			sb.WriteByte(' ')
			sb.WriteString(flag)
		}
	}
	if !ok {
		sb.WriteString(", ERROR")
	}
	return Interpretation{Info: sb.String(), Err: !ok}
}

// InterpretCIDOrCSD renders an R2 response. The register contents are not decoded.
func InterpretCIDOrCSD(bits []bool) Interpretation {
	res := Interpretation{Info: "R2, CID or CSD"}
	if !responseFramingOK(bits[:LongFrameLength]) {
		res.Info += ", ERROR"
		res.Err = true
	}
	return res
}

// InterpretOCR renders an R3 response by the busy bit of the OCR register.
func InterpretOCR(bits []bool) Interpretation {
	fr := newFieldReader(bits[:FrameLength])
	fr.bits(8) // Start, transmission and check bits.
	ocr := uint32(fr.bits(32))
	if ocr&(1<<31) != 0 {
		return Interpretation{Info: "R3, READY"}
	}
	return Interpretation{Info: "R3, BUSY"}
}

// InterpretR5 renders an R5 response.
func InterpretR5(bits []bool) Interpretation {
	return Interpretation{Info: "R5"}
}
