package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV parses a Saleae Logic 2 SPI analyzer table export, i.e:
//
//	name,type,start_time,duration,mosi,miso
//	SPI,result,0.000123,2.5e-06,0x40,0xFF
//
// Only "result" rows are kept when a type column is present.
func ReadCSV(r io.Reader) ([]Byte, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrBadCSVHeader
		}
		return nil, err
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	iStart, okStart := col["start_time"]
	iDur, okDur := col["duration"]
	iMosi, okMosi := col["mosi"]
	iType, hasType := col["type"]
	if !okStart || !okDur || !okMosi {
		return nil, ErrBadCSVHeader
	}

	var out []Byte
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return out, err
		}
		if hasType && iType < len(record) && record[iType] != "result" {
			continue
		}
		if iStart >= len(record) || iDur >= len(record) || iMosi >= len(record) {
			return out, fmt.Errorf("line %d: short record", line)
		}
		start, err := strconv.ParseFloat(record[iStart], 64)
		if err != nil {
			return out, fmt.Errorf("line %d: start_time: %w", line, err)
		}
		dur, err := strconv.ParseFloat(record[iDur], 64)
		if err != nil {
			return out, fmt.Errorf("line %d: duration: %w", line, err)
		}
		mosi := strings.TrimPrefix(strings.ToLower(record[iMosi]), "0x")
		v, err := strconv.ParseUint(mosi, 16, 8)
		if err != nil {
			return out, fmt.Errorf("line %d: mosi: %w", line, err)
		}
		out = append(out, Byte{
			Value: byte(v),
			Start: seconds(start),
			End:   seconds(start + dur),
		})
	}
	return out, nil
}
