package sdcmd

import (
	"strings"
	"testing"
)

func frameBits(frame []byte) []bool {
	var bits []bool
	for _, b := range frame {
		bb := BitsFromByte(b)
		bits = append(bits, bb[:]...)
	}
	return bits
}

func TestBitsRoundTrip(t *testing.T) {
	for x := 0; x < 256; x++ {
		bits := BitsFromByte(byte(x))
		if got := ValueFromBits(bits[:]); got != uint64(x) {
			t.Errorf("round trip %#x: got %#x", x, got)
		}
	}
	bits := BitsFromByte(0b1000_0001)
	if !bits[0] || !bits[7] || bits[1] {
		t.Error("bit order is not MSB first", bits)
	}
}

func TestValueFromBitsVariableLength(t *testing.T) {
	bits := frameBits([]byte{0xab, 0xcd, 0xef})
	if v := ValueFromBits(bits[2:8]); v != 0x2b {
		t.Errorf("6-bit field: got %#x", v)
	}
	if v := ValueFromBits(bits[1:23]); v != 0x2bcdef>>1 {
		t.Errorf("22-bit field: got %#x", v)
	}
	if v := ValueFromBits(nil); v != 0 {
		t.Error("empty slice should be zero")
	}
}

func TestPackBits(t *testing.T) {
	in := []byte{0xde, 0xad, 0xbe, 0xef}
	bits := frameBits(in)
	got := PackBits(nil, bits)
	if string(got) != string(in) {
		t.Errorf("got %x want %x", got, in)
	}
	got = PackBits(nil, bits[:3]) // 110 -> 0b1100_0000
	if len(got) != 1 || got[0] != 0xc0 {
		t.Errorf("partial byte: got %x", got)
	}
	if s := BitString(bits[:8]); s != "11011110" {
		t.Error("bad bit string", s)
	}
}

func TestCRC7(t *testing.T) {
	// Well known CMD0 and CMD8 frames end in 0x95 and 0x87.
	cmd0 := AppendCommand(nil, 0, 0)
	if cmd0[5] != 0x95 {
		t.Errorf("CMD0 crc byte: got %#x", cmd0[5])
	}
	cmd8 := AppendCommand(nil, 8, 0x1aa)
	if cmd8[5] != 0x87 {
		t.Errorf("CMD8 crc byte: got %#x", cmd8[5])
	}
	cmd := ParseCommand(frameBits(cmd8))
	if cmd.CRC7 != 0x43 || cmd.Argument != 0x1aa || cmd.Index != 8 || !cmd.Valid() {
		t.Errorf("bad parse %+v", cmd)
	}
}

func TestCommandTable(t *testing.T) {
	tests := []struct {
		index uint8
		name  string
		resp  ResponseKind
	}{
		{0, "GO_IDLE_STATE", RespNone},
		{1, "SEND_OP_COND", RespOCR},
		{2, "ALL_SEND_CID", RespCIDOrCSD},
		{39, "FAST_IO", RespReserved4},
		{52, "IO_RW_DIRECT", RespUnspecified5},
		{53, "IO_RW_EXTENDED", RespUnspecified5},
		{54, "PROTOCOL_WR", RespStatus},
		{17, "READ_SINGLE_BLOCK", RespStatus},
		{33, "unknown", RespNone},
		{63, "unknown", RespNone},
		{200, "unknown", RespNone},
	}
	for _, test := range tests {
		if got := CommandName(test.index); got != test.name {
			t.Errorf("CMD%d name: got %q want %q", test.index, got, test.name)
		}
		if got := ExpectedResponse(test.index); got != test.resp {
			t.Errorf("CMD%d response: got %v want %v", test.index, got, test.resp)
		}
	}
	if ResponseLength(RespCIDOrCSD) != 136 {
		t.Error("R2 must be 136 bits")
	}
	for _, k := range []ResponseKind{RespNone, RespStatus, RespOCR, RespReserved4, RespUnspecified5} {
		if ResponseLength(k) != 48 {
			t.Errorf("%v must be 48 bits", k)
		}
	}
}

func TestInterpretCommand(t *testing.T) {
	tests := []struct {
		frame []byte
		want  string
		err   bool
	}{
		{AppendCommand(nil, CmdGoIdleState, 0), "GO_IDLE_STATE (CMD0), arg:0", false},
		{AppendCommand(nil, 17, 1234), "READ_SINGLE_BLOCK (CMD17), arg:1234", false},
		{AppendCommand(nil, 33, 5), "CMD33, arg:5", false},
		{
			AppendCommand(nil, 52, IORWDirectArg(IORWDirect{Write: true, Function: 1, Address: 0x1000e, WriteData: 0x28})),
			"IO_RW_DIRECT (CMD52): Write: 40 Func1, Address 0x1000e", false,
		},
		{
			AppendCommand(nil, 52, IORWDirectArg(IORWDirect{Function: 0, Address: 0x7})),
			"IO_RW_DIRECT (CMD52): Read Func0, Address 0x7", false,
		},
		{
			AppendCommand(nil, 53, IORWExtendedArg(IORWExtended{Write: true, Function: 2, BlockMode: true, IncAddress: true, Address: 0x8000, Count: 3})),
			"IO_RW_EXTENDED (CMD53): Write Func2, Inc Address 0x8000, BlockMode: 3 blocks", false,
		},
		{
			AppendCommand(nil, 53, IORWExtendedArg(IORWExtended{Function: 1, Address: 0x10, Count: 64})),
			"IO_RW_EXTENDED (CMD53): Read Func1, Fix Address 0x10, ByteMode: 64 bytes", false,
		},
	}
	for _, test := range tests {
		res := InterpretCommand(frameBits(test.frame))
		if res.Info != test.want {
			t.Errorf("got %q want %q", res.Info, test.want)
		}
		if res.Err != test.err {
			t.Errorf("%q: err=%v", res.Info, res.Err)
		}
	}
}

func TestInterpretCommandTransfer(t *testing.T) {
	res := InterpretCommand(frameBits(AppendCommand(nil, 53, IORWExtendedArg(IORWExtended{BlockMode: true, Count: 5}))))
	if res.Transfer == nil || !res.Transfer.BlockMode || res.Transfer.Count != 5 {
		t.Fatalf("bad block transfer request %+v", res.Transfer)
	}
	res = InterpretCommand(frameBits(AppendCommand(nil, 53, IORWExtendedArg(IORWExtended{Count: 9}))))
	if res.Transfer == nil || res.Transfer.BlockMode || res.Transfer.Count != 9 {
		t.Fatalf("bad byte transfer request %+v", res.Transfer)
	}
	res = InterpretCommand(frameBits(AppendCommand(nil, 52, 0)))
	if res.Transfer != nil {
		t.Fatal("CMD52 must not request a transfer")
	}
}

func TestInterpretCommandFramingError(t *testing.T) {
	good := frameBits(AppendCommand(nil, 0, 0))
	for _, bit := range []int{0, 47} {
		bits := append([]bool{}, good...)
		bits[bit] = !bits[bit]
		res := InterpretCommand(bits)
		if !res.Err || !strings.Contains(res.Info, "ERROR") {
			t.Errorf("flipping bit %d: expected error, got %q", bit, res.Info)
		}
	}
}

func TestInterpretStatus(t *testing.T) {
	// CURRENT_STATE=TRANSFER(4) sits in bits 12:9.
	res := InterpretResponse(RespStatus, frameBits(AppendResponse(nil, 13, 4<<9)))
	if res.Info != "R1, TRANSFER" || res.Err {
		t.Errorf("got %q err=%v", res.Info, res.Err)
	}
	// Responses after a command with no expected response are still R1.
	res = InterpretResponse(RespNone, frameBits(AppendResponse(nil, 0, 0)))
	if res.Info != "R1, IDLE" {
		t.Errorf("got %q", res.Info)
	}
	res = InterpretResponse(RespStatus, frameBits(AppendResponse(nil, 13, 0xf<<9)))
	if res.Info != "R1, UNKNOWN (15), ERROR" || !res.Err {
		t.Errorf("got %q err=%v", res.Info, res.Err)
	}
}

func TestInterpretStatusFramingError(t *testing.T) {
	for _, tc := range []struct {
		name string
		bit  int
	}{
		{"start", 0},
		{"transmission", 1},
		{"end", FrameLength - 1},
	} {
		bits := frameBits(AppendResponse(nil, 13, 4<<9))
		bits[tc.bit] = !bits[tc.bit]
		res := InterpretResponse(RespStatus, bits)
		if !res.Err || res.Info != "R1, TRANSFER, ERROR" {
			t.Errorf("%s bit flipped: got %q err=%v", tc.name, res.Info, res.Err)
		}
	}
}

func TestInterpretStatusAllFlags(t *testing.T) {
	status := uint32(0xfff8<<16) | 1<<9 // 13 flags and READY.
	res := InterpretResponse(RespStatus, frameBits(AppendResponse(nil, 13, status)))
	want := "R1, READY " + strings.Join(StatusFlags[:], " ")
	if res.Info != want {
		t.Errorf("got %q\nwant %q", res.Info, want)
	}
}

func TestInterpretOtherResponses(t *testing.T) {
	if res := InterpretResponse(RespOCR, frameBits(AppendResponse(nil, 0x3f, 1<<31|0xff8000))); res.Info != "R3, READY" {
		t.Errorf("got %q", res.Info)
	}
	if res := InterpretResponse(RespOCR, frameBits(AppendResponse(nil, 0x3f, 0xff8000))); res.Info != "R3, BUSY" {
		t.Errorf("got %q", res.Info)
	}
	if res := InterpretResponse(RespUnspecified5, frameBits(AppendResponse(nil, 52, 0))); res.Info != "R5" {
		t.Errorf("got %q", res.Info)
	}
	if res := InterpretResponse(RespReserved4, frameBits(AppendResponse(nil, 39, 0))); res.Info != "R4" {
		t.Errorf("got %q", res.Info)
	}
	long := make([]bool, LongFrameLength)
	long[LongFrameLength-1] = true
	if res := InterpretResponse(RespCIDOrCSD, long); res.Info != "R2, CID or CSD" || res.Err {
		t.Errorf("got %q", res.Info)
	}
	long[1] = true
	if res := InterpretResponse(RespCIDOrCSD, long); !res.Err {
		t.Error("expected framing error on R2 with transmission bit set")
	}
}
