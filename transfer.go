package sdmmcspi

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/soypat/sdmmcspi/sdcmd"
)

// Data tokens preceding each CMD53 block on the line.
const (
	tokenStartBlock = 0xfc
	tokenStopBlock  = 0xfd
	// crcLen is the CRC16 trailing every data block.
	crcLen = 2
)

// transfer tracks a CMD53 data transfer so payload bytes are skipped
// instead of being framed as commands. The zero value is no transfer.
type transfer struct {
	// skip is the number of payload and CRC bytes left in the current block.
	skip           uint32
	blocksPending  uint32
	blocksReceived uint32
	tokenSeen      bool
	dataStart      time.Duration
}

func (t *transfer) active() bool { return t.skip > 0 }

// startTransfer applies a transfer request decoded from a CMD53 command.
func (d *Decoder) startTransfer(req sdcmd.TransferRequest) {
	if req.BlockMode && req.Count == 0 {
		d.warn("cmd53:infinite-block-transfer-untracked")
		return
	}
	t := &d.xfer
	*t = transfer{}
	if req.BlockMode {
		t.skip = d.cfg.BlockSize + crcLen
		t.blocksPending = req.Count
	} else {
		t.skip = req.Count + crcLen
		t.blocksPending = 1
	}
	d.debug("cmd53:start",
		slog.Bool("blockMode", req.BlockMode),
		slog.Uint64("count", uint64(req.Count)),
		slog.Uint64("skip", uint64(t.skip)),
	)
}

// consumePayload handles a byte while a transfer is active.
func (d *Decoder) consumePayload(value byte, end time.Duration) (Frame, bool) {
	t := &d.xfer
	if !t.tokenSeen {
		if value == tokenStartBlock || value == tokenStopBlock {
			t.tokenSeen = true
			t.dataStart = end
			d.debug("cmd53:start-token", slog.Duration("t", end))
		}
		return Frame{}, false
	}
	if t.skip > 1 {
		t.skip--
		return Frame{}, false
	}
	// Last byte of the block.
	t.blocksPending--
	t.blocksReceived++
	frame := Frame{
		Start: t.dataStart,
		End:   end,
		Type:  FrameData,
		Info:  "DATA BLOCK " + strconv.FormatUint(uint64(t.blocksReceived), 10),
	}
	if t.blocksPending == 0 {
		d.debug("cmd53:end", slog.Uint64("blocks", uint64(t.blocksReceived)))
		*t = transfer{}
	} else {
		d.debug("cmd53:end-block", slog.Uint64("pending", uint64(t.blocksPending)))
		t.skip = d.cfg.BlockSize + crcLen
		t.tokenSeen = false
	}
	return frame, true
}
