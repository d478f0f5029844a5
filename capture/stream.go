package capture

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	tcpPrefix    = "tcp:"
	serialPrefix = "serial:"
)

// DefaultSnifferBaud is the serial baud rate used to talk to a sniffer.
const DefaultSnifferBaud = 115200

// Stream yields bytes of a raw CMD line stream, as forwarded by a sniffer
// clocking the line continuously. Byte timestamps are synthesised from
// the line bit rate.
type Stream struct {
	r       *bufio.Reader
	closer  io.Closer
	bitrate int
	n       int64
}

// NewStream returns a Stream reading raw line bytes from r. bitrate is the
// CMD line clock in bits per second.
func NewStream(r io.Reader, bitrate int) *Stream {
	if bitrate <= 0 {
		bitrate = 400_000
	}
	s := &Stream{r: bufio.NewReader(r), bitrate: bitrate}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenStream opens a live or recorded stream. name is one of
// "tcp:host:port", "serial:/dev/ttyACM0", "-" for stdin or a file path.
// baud is used for serial ports only.
func OpenStream(name string, baud, bitrate int) (*Stream, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case strings.HasPrefix(name, tcpPrefix):
		rc, err = net.Dial("tcp", name[len(tcpPrefix):])
	case strings.HasPrefix(name, serialPrefix):
		if baud <= 0 {
			baud = DefaultSnifferBaud
		}
		rc, err = serial.Open(name[len(serialPrefix):], &serial.Mode{BaudRate: baud})
	case name == "-":
		rc = io.NopCloser(os.Stdin)
	case name == "":
		err = errors.New("capture: empty stream name")
	default:
		rc, err = os.Open(name)
	}
	if err != nil {
		return nil, err
	}
	return NewStream(rc, bitrate), nil
}

// Next returns the next byte of the stream.
func (s *Stream) Next() (Byte, error) {
	v, err := s.r.ReadByte()
	if err != nil {
		return Byte{}, err
	}
	start := seconds(float64(s.n*bitsPerByte) / float64(s.bitrate))
	s.n++
	return Byte{
		Value: v,
		Start: start,
		End:   start + seconds(7.5/float64(s.bitrate)),
	}, nil
}

// Close closes the underlying connection or file, if any.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Elapsed returns the synthesised capture time consumed so far.
func (s *Stream) Elapsed() time.Duration {
	return seconds(float64(s.n*bitsPerByte) / float64(s.bitrate))
}
