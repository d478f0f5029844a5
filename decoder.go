package sdmmcspi

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/soypat/sdmmcspi/sdcmd"
)

// Default timing calibration and CMD53 block size.
const (
	DefaultBlockSize = 256
	// DefaultBitDivisor splits a byte's observed duration into bit periods.
	// Byte timestamps span from the first to the last sampling edge plus
	// half a bit, hence 7.5 and not 8.
	DefaultBitDivisor = 7.5
	// DefaultSplitOffset is the bit fraction added back when a frame
	// starts in the middle of a byte.
	DefaultSplitOffset = 0.5
)

// FrameType classifies decoded frames.
type FrameType uint8

const (
	FrameCommand FrameType = iota + 1
	FrameResponse
	FrameData
)

func (ft FrameType) String() (s string) {
	switch ft {
	case FrameCommand:
		s = "CMD"
	case FrameResponse:
		s = "RSP"
	case FrameData:
		s = "DATA"
	default:
		s = "unknown"
	}
	return s
}

// Frame is a decoded command, response or CMD53 data block.
type Frame struct {
	Start time.Duration
	End   time.Duration
	Type  FrameType
	// Index is the command index of FrameCommand frames.
	Index uint8
	// Err is set when the frame failed framing or field checks.
	Err  bool
	Info string
}

// Config configures a Decoder. Zero valued fields take the values of DefaultConfig.
type Config struct {
	// BlockSize is the CMD53 block size in bytes. It is configured through
	// CMD52 writes to the FBR and cannot be tracked from the CMD line alone.
	BlockSize  uint32
	BitDivisor float64
	// SplitOffset is the bit fraction added back when a frame starts
	// mid-byte. Nil selects DefaultSplitOffset so that zero stays expressible.
	SplitOffset *float64
	// Logger receives decoder diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		BlockSize:   DefaultBlockSize,
		BitDivisor:  DefaultBitDivisor,
		SplitOffset: SplitOffset(DefaultSplitOffset),
	}
}

// SplitOffset returns a pointer to v for use in Config.
func SplitOffset(v float64) *float64 { return &v }

// Decoder reconstructs command and response frames from bytes sampled off
// the CMD line by an SPI analyzer with CLK on SCK and CMD on MOSI. Frames
// need not be byte aligned. A Decoder is not safe for concurrent use.
type Decoder struct {
	cfg    Config
	logger *slog.Logger
	// _traceenabled avoids rendering bit strings when nobody reads them.
	_traceenabled bool
	window        bitWindow
	// frameStart is the start time of the frame being assembled in window.
	frameStart time.Duration
	expected   sdcmd.ResponseKind
	xfer       transfer
	bitbuf     [sdcmd.LongFrameLength]bool
}

// NewDecoder returns a ready to use decoder.
func NewDecoder(cfg Config) *Decoder {
	def := DefaultConfig()
	if cfg.BlockSize == 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.BitDivisor <= 0 {
		cfg.BitDivisor = def.BitDivisor
	}
	if cfg.SplitOffset == nil {
		cfg.SplitOffset = def.SplitOffset
	} else {
		// Copy so later writes through the caller's pointer have no effect.
		cfg.SplitOffset = SplitOffset(*cfg.SplitOffset)
	}
	return &Decoder{
		cfg:           cfg,
		logger:        cfg.Logger,
		_traceenabled: cfg.Logger != nil && cfg.Logger.Handler().Enabled(context.Background(), levelTrace),
	}
}

// Reset discards partial frames, the expected response and any CMD53 transfer.
func (d *Decoder) Reset() {
	d.window.Reset()
	d.frameStart = 0
	d.expected = sdcmd.RespNone
	d.xfer = transfer{}
}

// InTransfer reports whether the decoder is skipping CMD53 payload bytes.
func (d *Decoder) InTransfer() bool { return d.xfer.active() }

// Expected returns the response kind the decoder expects next.
func (d *Decoder) Expected() sdcmd.ResponseKind { return d.expected }

// Buffered returns the number of bits of a partial frame held by the decoder.
func (d *Decoder) Buffered() int { return d.window.Len() }

// AddByte consumes one byte sampled off the line between start and end and
// returns the frame completed by it, if any.
func (d *Decoder) AddByte(value byte, start, end time.Duration) (Frame, bool) {
	if d.xfer.active() {
		return d.consumePayload(value, end)
	}
	if value == 0xff && d.window.Len() == 0 {
		return Frame{}, false // Idle line.
	}
	bitLen := float64(end-start) / d.cfg.BitDivisor
	if d.window.Len() == 0 {
		d.window.PushByte(value)
		idle := d.window.TrimIdle()
		d.frameStart = start + bits(idle, bitLen)
		return Frame{}, false
	}
	d.window.PushByte(value)
	length := d.expected.Length()
	if d.window.Len() < length {
		return Frame{}, false
	}

	excess := d.window.Len() - length
	frame := Frame{
		Start: d.frameStart,
		End:   end - bits(excess, bitLen),
	}
	raw := d.window.TakePrefix(d.bitbuf[:0], length)
	if d._traceenabled {
		d.trace("frame", slog.String("bits", sdcmd.BitString(raw)))
	}
	var res sdcmd.Interpretation
	if raw[1] {
		frame.Type = FrameCommand
		frame.Index = uint8(sdcmd.ValueFromBits(raw[2:8]))
		res = sdcmd.InterpretCommand(raw)
		d.expected = sdcmd.ExpectedResponse(frame.Index)
		if res.Transfer != nil && frame.Index == sdcmd.CmdIORWExtended {
			d.startTransfer(*res.Transfer)
		}
	} else {
		frame.Type = FrameResponse
		res = sdcmd.InterpretResponse(d.expected, raw)
		d.expected = sdcmd.RespNone
	}
	frame.Info = res.Info
	frame.Err = res.Err
	if frame.Err {
		d.warn("malformed frame", slog.String("info", frame.Info), slog.Duration("t", frame.Start))
	}

	// Leftover bits belong to the next frame.
	if d.window.AllIdle() {
		d.window.Reset()
	} else {
		d.window.TrimIdle()
		d.frameStart = end - time.Duration(math.Round((float64(d.window.Len())-*d.cfg.SplitOffset)*bitLen))
	}
	return frame, true
}

// bits returns the duration of n bits of length bitLen.
func bits(n int, bitLen float64) time.Duration {
	return time.Duration(math.Round(float64(n) * bitLen))
}
