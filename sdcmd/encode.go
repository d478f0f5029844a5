package sdcmd

import (
	"encoding/binary"

	"github.com/go-daq/crc8"
)

// crc7Table computes CRC7 (x^7+x^3+1) as a left-aligned CRC8 over polynomial 0x12.
var crc7Table = crc8.MakeTable(0x09 << 1)

// CRC7 returns the 7-bit CRC of data as used by command and response frames.
func CRC7(data []byte) uint8 {
	return crc8.Checksum(data, crc7Table) >> 1
}

// AppendCommand appends the 6 byte encoding of a host to card command frame to dst.
func AppendCommand(dst []byte, index uint8, arg uint32) []byte {
	return appendFrame(dst, 0x40|index&0x3f, arg)
}

// AppendResponse appends the 6 byte encoding of a 48-bit card to host
// response frame to dst. The index is the command index for R1 and R5 or
// the check bits (0x3f) for R3.
func AppendResponse(dst []byte, index uint8, payload uint32) []byte {
	return appendFrame(dst, index&0x3f, payload)
}

func appendFrame(dst []byte, first byte, payload uint32) []byte {
	var frame [6]byte
	frame[0] = first
	binary.BigEndian.PutUint32(frame[1:5], payload)
	frame[5] = CRC7(frame[:5])<<1 | 1
	return append(dst, frame[:]...)
}

// IORWExtendedArg builds a CMD53 argument.
func IORWExtendedArg(ext IORWExtended) (arg uint32) {
	if ext.Write {
		arg |= 1 << 31
	}
	arg |= uint32(ext.Function&0b111) << 28
	if ext.BlockMode {
		arg |= 1 << 27
	}
	if ext.IncAddress {
		arg |= 1 << 26
	}
	arg |= (ext.Address & 0x1ffff) << 9
	arg |= uint32(ext.Count & 0x1ff)
	return arg
}

// IORWDirectArg builds a CMD52 argument.
func IORWDirectArg(direct IORWDirect) (arg uint32) {
	if direct.Write {
		arg |= 1 << 31
	}
	arg |= uint32(direct.Function&0b111) << 28
	if direct.RAW {
		arg |= 1 << 27
	}
	arg |= (direct.Address & 0x1ffff) << 9
	arg |= uint32(direct.WriteData)
	return arg
}
