package sensor

import (
	"bufio"
	"context"
	"expvar"
	"io"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/helpers"
)

const (
	DefaultDialTimeout = 5 * time.Second
	// sink write buffer, larger frames bypass it
	sinkBufferSize = 64 << 10
)

// Sink is outbound connection of one sensor stream.
// WriteFrame writes whole frame then flushes.
type Sink interface {
	WriteFrame(b []byte) error
	Close() error
}

type Dialer func(ctx context.Context, address string) (net.Conn, error)

func NewTCPDialer(timeout time.Duration) Dialer {
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	return func(ctx context.Context, address string) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", address)
	}
}

type streamSink struct {
	conn net.Conn
	raw  io.Writer
	w    *bufio.Writer
}

var _ Sink = &streamSink{}

// NewStreamSink counts written bytes into `written`, may be nil.
func NewStreamSink(conn net.Conn, written *expvar.Int) Sink {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(false)
		_ = tcp.SetWriteBuffer(sinkBufferSize)
	}
	if written == nil {
		written = new(expvar.Int)
	}
	raw := helpers.NewStatWriter(conn, written, 0)
	return &streamSink{
		conn: conn,
		raw:  raw,
		w:    bufio.NewWriterSize(raw, sinkBufferSize),
	}
}

func (s *streamSink) WriteFrame(b []byte) error {
	if err := helpers.WriteFlush(s.w, b); err != nil {
		// bufio error is sticky, reset drops it with the unsent tail
		s.w.Reset(s.raw)
		return errors.Annotatef(err, "write remote=%s", s.conn.RemoteAddr())
	}
	return nil
}

func (s *streamSink) Close() error { return s.conn.Close() }
