package capture

import (
	"fmt"
	"io"
	"os"

	"github.com/soypat/saleae"
)

// bitsPerByte is fixed: SPI analyzers emit 8 bit transfers.
const bitsPerByte = 8

// OpenDigital reads a Saleae binary digital channel export.
func OpenDigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadDigital(fp)
}

// ReadDigital reads a Saleae binary digital channel export from r.
func ReadDigital(r io.Reader) (*saleae.DigitalFile, error) {
	df, err := saleae.ReadDigitalFile(r)
	if err != nil {
		return nil, fmt.Errorf("reading digital export: %w", err)
	}
	return df, nil
}

// SampleClocked samples the cmd channel on every rising edge of clk and
// groups the samples 8 at a time into bytes, MSB first. A byte spans from
// half a clock period before its first edge to its eighth edge.
// Trailing samples that do not fill a byte are dropped.
func SampleClocked(clk, cmd *saleae.DigitalFile) ([]Byte, error) {
	clkState := clk.Header.InitialState != 0
	cmdState := cmd.Header.InitialState != 0
	iclk := 0
	if clkState {
		iclk = 1 // Only iterate over rising flanks.
	}
	if iclk >= len(clk.Data) {
		return nil, ErrNoClockEdges
	}
	var (
		out     []Byte
		current byte
		edges   [bitsPerByte]float64
		bitIdx  int
	)
	cmdLast := 0
	for ; iclk < len(clk.Data); iclk += 2 {
		t := float64(clk.Data[iclk])
		for cmdLast < len(cmd.Data) && t > float64(cmd.Data[cmdLast]) {
			cmdLast++
			cmdState = !cmdState
		}
		edges[bitIdx] = t
		if cmdState {
			current |= 1 << (7 - bitIdx)
		}
		bitIdx++
		if bitIdx == bitsPerByte {
			period := (edges[bitsPerByte-1] - edges[0]) / (bitsPerByte - 1)
			out = append(out, Byte{
				Value: current,
				Start: seconds(edges[0] - period/2),
				End:   seconds(edges[bitsPerByte-1]),
			})
			current = 0
			bitIdx = 0
		}
	}
	return out, nil
}
