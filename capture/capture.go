// Package capture turns logic analyzer exports and live sniffer streams
// into timestamped bytes of the SD CMD line.
package capture

import (
	"errors"
	"io"
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

var (
	ErrNoClockEdges = errors.New("capture: clock channel has no rising edges")
	ErrBadCSVHeader = errors.New("capture: CSV header lacks start_time, duration or mosi column")
)

// Byte is one byte of the CMD line with the time span it was sampled in,
// relative to the start of the capture.
type Byte struct {
	Value byte
	Start time.Duration
	End   time.Duration
}

// Source yields captured bytes in temporal order. Next returns io.EOF after
// the last byte.
type Source interface {
	Next() (Byte, error)
}

// Slice is a Source over bytes held in memory.
type Slice struct {
	bytes []Byte
	i     int
}

// NewSlice returns a Source yielding bytes in order.
func NewSlice(bytes []Byte) *Slice { return &Slice{bytes: bytes} }

func (s *Slice) Next() (Byte, error) {
	if s.i >= len(s.bytes) {
		return Byte{}, io.EOF
	}
	b := s.bytes[s.i]
	s.i++
	return b, nil
}

// Len returns the number of bytes not yet read.
func (s *Slice) Len() int { return len(s.bytes) - s.i }

// seconds converts a time in seconds to a duration rounded to the nanosecond.
func seconds[T constraints.Integer | constraints.Float](s T) time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}
