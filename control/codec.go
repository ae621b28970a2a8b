package control

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/temoto/rover/helpers"
)

const (
	HeaderSize       = 4
	DefaultReadLimit = 16 << 10
)

// ErrEndOfStream means connection input ended at frame boundary, or read error on length prefix.
var ErrEndOfStream = errors.New("end of stream")

// DecodeError is fatal for connection: short frame, oversize length or malformed record.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("control decode %s: %v", e.Op, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

func IsDecodeError(err error) bool {
	_, ok := errors.Cause(err).(*DecodeError)
	return ok
}

// Decoder reads [length u32 LE][cbor event] frames.
// First error is sticky: after EndOfStream or DecodeError every Next returns the same error.
type Decoder struct {
	r     io.Reader
	limit uint32
	buf   []byte
	err   error
}

// limit=0 means DefaultReadLimit
func NewDecoder(r io.Reader, limit uint32) *Decoder {
	if limit == 0 {
		limit = DefaultReadLimit
	}
	return &Decoder{r: r, limit: limit}
}

func (d *Decoder) Err() error { return d.err }

func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}
	e, err := d.next()
	if err != nil {
		d.err = err
		return Event{}, err
	}
	return e, nil
}

func (d *Decoder) next() (Event, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if err == io.EOF {
			return Event{}, ErrEndOfStream
		}
		return Event{}, errors.Annotatef(ErrEndOfStream, "header err=%v", err)
	}
	length := binary.LittleEndian.Uint32(hdr[:])
	if length > d.limit {
		return Event{}, &DecodeError{Op: "length", Err: errors.Errorf("length=%d exceeds limit=%d", length, d.limit)}
	}
	if cap(d.buf) < int(length) {
		d.buf = make([]byte, length)
	}
	d.buf = d.buf[:length]
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Event{}, &DecodeError{Op: "read", Err: errors.Annotatef(err, "length=%d", length)}
	}
	var e Event
	if err := decMode.Unmarshal(d.buf, &e); err != nil {
		return Event{}, &DecodeError{Op: "payload", Err: err}
	}
	return e, nil
}

// AppendFrame appends wire frame of event.
func AppendFrame(b []byte, e Event) ([]byte, error) {
	payload, err := e.MarshalCBOR()
	if err != nil {
		return b, errors.Annotate(err, "marshal")
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...), nil
}

// Encoder is operator side of the channel. Each Send is one flushed frame.
type Encoder struct {
	w   *bufio.Writer
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (enc *Encoder) Send(e Event) error {
	var err error
	if enc.buf, err = AppendFrame(enc.buf[:0], e); err != nil {
		return errors.Annotatef(err, "send event=%s", e)
	}
	return errors.Annotatef(helpers.WriteFlush(enc.w, enc.buf), "send event=%s", e)
}
