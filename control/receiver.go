package control

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
)

// Handler consumes decoded events in order. Apply must not retain the connection.
type Handler interface {
	Apply(Event)
}

type HandlerFunc func(Event)

func (f HandlerFunc) Apply(e Event) { f(e) }

type ListenFunc func(ctx context.Context, address string) (net.Listener, error)

func ListenTCP(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", address)
}

type ReceiverOptions struct {
	Address   string
	ReadLimit uint32
	Handler   Handler
	Listen    ListenFunc
	Log       *log2.Log
}

type ReceiverStat struct {
	Conns        expvar.Int
	Events       expvar.Int
	DecodeErrors expvar.Int
}

func (s *ReceiverStat) String() string {
	return fmt.Sprintf(`{"conns":%d,"events":%d,"decode_errors":%d}`,
		s.Conns.Value(), s.Events.Value(), s.DecodeErrors.Value())
}

// Receiver serves one operator connection at a time.
// Each connection is decoded until end of stream or decode error, then next one is accepted.
type Receiver struct {
	opt     ReceiverOptions
	log     *log2.Log
	backoff helpers.Backoff
	stat    ReceiverStat
}

func NewReceiver(opt ReceiverOptions) (*Receiver, error) {
	if opt.Handler == nil {
		return nil, errors.NotValidf("code error control receiver Handler=nil")
	}
	if opt.Listen == nil {
		opt.Listen = ListenTCP
	}
	return &Receiver{
		opt:     opt,
		log:     opt.Log.Named("control"),
		backoff: helpers.Backoff{Min: 5 * time.Millisecond, Max: time.Second, K: 2},
	}, nil
}

func (r *Receiver) String() string      { return "control" }
func (r *Receiver) Stat() *ReceiverStat { return &r.stat }

func (r *Receiver) Run(ctx context.Context) error {
	ll, err := r.opt.Listen(ctx, r.opt.Address)
	if err != nil {
		return errors.Annotatef(err, "control listen address=%s", r.opt.Address)
	}
	r.log.Infof("listen address=%s", ll.Addr())
	return r.Serve(ctx, ll)
}

// Serve takes ownership of listener and closes it on return.
func (r *Receiver) Serve(ctx context.Context, ll net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ll.Close()
	}()

	for {
		conn, err := ll.Accept()
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			r.log.Infof("stop stat=%s", r.stat.String())
			return ctx.Err()
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				delay := r.backoff.DelayAfter(false)
				r.log.Errorf("accept err=%v retry in %v", err, delay)
				time.Sleep(delay)
				continue
			}
			return errors.Annotatef(err, "control accept listen=%s", ll.Addr())
		}
		r.backoff.Reset()
		err = r.ServeConn(ctx, conn)
		switch {
		case err == nil, errors.Cause(err) == ErrEndOfStream:
			r.log.Infof("disconnect remote=%s", conn.RemoteAddr())
		case IsDecodeError(err):
			r.stat.DecodeErrors.Add(1)
			r.log.Errorf("drop remote=%s err=%v", conn.RemoteAddr(), err)
		default:
			r.log.Errorf("remote=%s err=%v", conn.RemoteAddr(), err)
		}
	}
}

// ServeConn decodes events from conn into Handler until first decoder error, then closes conn.
func (r *Receiver) ServeConn(ctx context.Context, conn net.Conn) error {
	r.stat.Conns.Add(1)
	r.log.Infof("accept remote=%s", conn.RemoteAddr())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	dec := NewDecoder(conn, r.opt.ReadLimit)
	for {
		e, err := dec.Next()
		if err != nil {
			return err
		}
		r.stat.Events.Add(1)
		r.log.Debugf("event %s", e)
		r.opt.Handler.Apply(e)
	}
}
