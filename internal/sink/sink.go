// Package sink renders decoded frames to the host: a text timeline and an
// MQTT topic.
package sink

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/soypat/sdmmcspi"
)

var ErrNotConnected = errors.New("sink: mqtt client not connected")

// Sink receives decoded frames in order.
type Sink interface {
	Emit(frame sdmmcspi.Frame) error
	Close() error
}

// Format renders a frame as a single timeline line, for example:
//
//	t=0.000016000s..0.000063500s	CMD	GO_IDLE_STATE (CMD0), arg:0
//
// Frames flagged with errors carry a '!' after the type.
func Format(frame sdmmcspi.Frame) string {
	return string(AppendFormat(nil, frame))
}

// AppendFormat appends the Format rendering of frame to dst.
func AppendFormat(dst []byte, frame sdmmcspi.Frame) []byte {
	dst = append(dst, "t="...)
	dst = strconv.AppendFloat(dst, frame.Start.Seconds(), 'f', 9, 64)
	dst = append(dst, "s.."...)
	dst = strconv.AppendFloat(dst, frame.End.Seconds(), 'f', 9, 64)
	dst = append(dst, "s\t"...)
	dst = append(dst, frame.Type.String()...)
	if frame.Err {
		dst = append(dst, '!')
	}
	dst = append(dst, '\t')
	dst = append(dst, frame.Info...)
	return dst
}

// Text writes one Format line per frame.
type Text struct {
	w      io.Writer
	closer io.Closer
	buf    []byte
	// OmitData skips CMD53 data block frames.
	OmitData bool
}

// NewText returns a Text sink writing to w. Close does not close w.
func NewText(w io.Writer) *Text { return &Text{w: w} }

// NewTextCloser returns a Text sink that closes wc on Close.
func NewTextCloser(wc io.WriteCloser) *Text { return &Text{w: wc, closer: wc} }

func (t *Text) Emit(frame sdmmcspi.Frame) error {
	if t.OmitData && frame.Type == sdmmcspi.FrameData {
		return nil
	}
	t.buf = AppendFormat(t.buf[:0], frame)
	t.buf = append(t.buf, '\n')
	_, err := t.w.Write(t.buf)
	if err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (t *Text) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// Multi fans frames out to several sinks. Emit stops at the first error.
type Multi []Sink

func (m Multi) Emit(frame sdmmcspi.Frame) error {
	for _, s := range m {
		if err := s.Emit(frame); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
