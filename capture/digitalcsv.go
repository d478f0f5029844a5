package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DigitalCSVConfig selects the columns of a Saleae raw digital CSV export.
// Column 0 is always the time in seconds.
type DigitalCSVConfig struct {
	ClockColumn int
	CmdColumn   int
}

// ReadDigitalCSV samples the CMD column on rising edges of the clock column
// of a raw digital CSV export where each row is a line transition:
//
//	Time [s],Channel 0,Channel 1
//	0.000000000,0,1
//	0.000001000,1,1
//
// Bytes are timed like SampleClocked.
func ReadDigitalCSV(r io.Reader, cfg DigitalCSVConfig) ([]Byte, error) {
	if cfg.ClockColumn < 1 || cfg.CmdColumn < 1 || cfg.ClockColumn == cfg.CmdColumn {
		return nil, fmt.Errorf("capture: invalid digital CSV columns clk=%d cmd=%d", cfg.ClockColumn, cfg.CmdColumn)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil { // Header.
		return nil, err
	}
	var (
		out     []Byte
		current byte
		edges   [bitsPerByte]float64
		bitIdx  int
		prevCLK = -1
		rising  int
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return out, err
		}
		if len(record) <= cfg.ClockColumn || len(record) <= cfg.CmdColumn {
			return out, fmt.Errorf("line %d: short record", line)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return out, fmt.Errorf("line %d: time: %w", line, err)
		}
		clk, err := strconv.Atoi(strings.TrimSpace(record[cfg.ClockColumn]))
		if err != nil {
			return out, fmt.Errorf("line %d: clock: %w", line, err)
		}
		cmd, err := strconv.Atoi(strings.TrimSpace(record[cfg.CmdColumn]))
		if err != nil {
			return out, fmt.Errorf("line %d: cmd: %w", line, err)
		}
		if prevCLK == 0 && clk == 1 {
			// Capture CMD bit on CLK rising edge.
			rising++
			edges[bitIdx] = t
			current = current<<1 | byte(cmd&1)
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
		prevCLK = clk
	}
	if rising == 0 {
		return nil, ErrNoClockEdges
	}
	return out, nil
}
