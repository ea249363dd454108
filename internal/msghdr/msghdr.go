// Package msghdr encodes the text header the example publisher writes at the
// start of every message: "Message #<seq> <unix-micros>", NUL padded.
package msghdr

import (
	"bytes"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Size is the number of bytes reserved for the header.
const Size = 64

const prefix = "Message #"

// ErrMalformed is returned by Parse for a header it cannot read.
var ErrMalformed = errors.New("msghdr: malformed header")

// Header is the sequence number and send time of one message.
type Header struct {
	Seq  uint64
	Sent time.Time
}

// Put writes h into the first Size bytes of buf and zeroes the rest of the
// header area. It returns the number of text bytes written.
func Put(buf []byte, h Header) (int, error) {
	if len(buf) < Size {
		return 0, errors.Errorf("msghdr: buffer of %d bytes is smaller than the %d byte header", len(buf), Size)
	}
	area := buf[:Size:Size]
	text := strconv.AppendUint(append(area[:0], prefix...), h.Seq, 10)
	text = append(text, ' ')
	text = strconv.AppendInt(text, h.Sent.UnixMicro(), 10)
	n := len(text)
	clear(area[n:])
	return n, nil
}

// Parse reads a header written by Put.
func Parse(buf []byte) (Header, error) {
	if len(buf) > Size {
		buf = buf[:Size]
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	rest, ok := bytes.CutPrefix(buf, []byte(prefix))
	if !ok {
		return Header{}, errors.Wrapf(ErrMalformed, "missing prefix in %q", buf)
	}
	seqText, tsText, ok := bytes.Cut(rest, []byte{' '})
	if !ok {
		return Header{}, errors.Wrapf(ErrMalformed, "missing timestamp in %q", buf)
	}
	seq, err := strconv.ParseUint(string(seqText), 10, 64)
	if err != nil {
		return Header{}, errors.Wrapf(ErrMalformed, "sequence: %v", err)
	}
	ts, err := strconv.ParseInt(string(bytes.TrimSpace(tsText)), 10, 64)
	if err != nil {
		return Header{}, errors.Wrapf(ErrMalformed, "timestamp: %v", err)
	}
	return Header{Seq: seq, Sent: time.UnixMicro(ts)}, nil
}
