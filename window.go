package sdmmcspi

import "github.com/soypat/sdmmcspi/sdcmd"

// windowSize must be a power of two larger than the longest frame plus one byte.
const windowSize = 256

// bitWindow is a ring buffer of bits accumulated from the line.
// Bits are pushed a byte at a time and consumed from the front.
type bitWindow struct {
	buf  [windowSize]bool
	head int
	n    int
}

func (w *bitWindow) Len() int { return w.n }

func (w *bitWindow) Reset() { w.head, w.n = 0, 0 }

func (w *bitWindow) at(i int) bool { return w.buf[(w.head+i)&(windowSize-1)] }

// PushByte appends the 8 bits of b, MSB first. The oldest bits are
// overwritten if the window is full.
func (w *bitWindow) PushByte(b byte) {
	bits := sdcmd.BitsFromByte(b)
	for _, bit := range bits {
		w.buf[(w.head+w.n)&(windowSize-1)] = bit
		if w.n == windowSize {
			w.head = (w.head + 1) & (windowSize - 1)
		} else {
			w.n++
		}
	}
}

// TakePrefix removes the first n bits from the window and appends them to dst.
func (w *bitWindow) TakePrefix(dst []bool, n int) []bool {
	if n > w.n {
		n = w.n
	}
	for i := 0; i < n; i++ {
		dst = append(dst, w.at(i))
	}
	w.PopFront(n)
	return dst
}

// PopFront discards the first n bits.
func (w *bitWindow) PopFront(n int) {
	if n >= w.n {
		w.Reset()
		return
	}
	w.head = (w.head + n) & (windowSize - 1)
	w.n -= n
}

// TrimIdle drops the leading run of idle (high) bits and returns how many
// were dropped.
func (w *bitWindow) TrimIdle() (n int) {
	for n < w.n && w.at(n) {
		n++
	}
	w.PopFront(n)
	return n
}

// AllIdle reports whether every bit in the window is high. An empty window is idle.
func (w *bitWindow) AllIdle() bool {
	for i := 0; i < w.n; i++ {
		if !w.at(i) {
			return false
		}
	}
	return true
}
