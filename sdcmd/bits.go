package sdcmd

import (
	"bytes"

	"github.com/icza/bitio"
)

// BitsFromByte returns the 8 bits of b, most significant bit first.
func BitsFromByte(b byte) [8]bool {
	var bits [8]bool
	for i := range bits {
		bits[i] = b&(1<<(7-i)) != 0
	}
	return bits
}

// ValueFromBits accumulates bits big-endian into an unsigned integer.
// Slices longer than 64 bits overflow silently.
func ValueFromBits(bits []bool) (v uint64) {
	for _, b := range bits {
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v
}

// PackBits packs bits MSB first into bytes. A trailing partial byte is
// zero padded on the right.
func PackBits(dst []byte, bits []bool) []byte {
	n := (len(bits) + 7) / 8
	for i := 0; i < n; i++ {
		var b byte
		for j := 0; j < 8; j++ {
			k := i*8 + j
			if k < len(bits) && bits[k] {
				b |= 1 << (7 - j)
			}
		}
		dst = append(dst, b)
	}
	return dst
}

// BitString renders bits as a string of '0' and '1' characters.
func BitString(bits []bool) string {
	buf := make([]byte, len(bits))
	for i, b := range bits {
		buf[i] = '0'
		if b {
			buf[i] = '1'
		}
	}
	return string(buf)
}

// fieldReader reads consecutive MSB-first fields out of a packed frame.
// Frames are always long enough for the fields requested so the first read
// error is latched and reported as zero values thereafter.
type fieldReader struct {
	r   *bitio.Reader
	err error
}

func newFieldReader(bits []bool) *fieldReader {
	var buf [17]byte
	return &fieldReader{r: bitio.NewReader(bytes.NewReader(PackBits(buf[:0], bits)))}
}

func (fr *fieldReader) bits(n uint8) uint64 {
	if fr.err != nil {
		return 0
	}
	v, err := fr.r.ReadBits(n)
	if err != nil {
		fr.err = err
		return 0
	}
	return v
}

func (fr *fieldReader) flag() bool {
	return fr.bits(1) != 0
}
