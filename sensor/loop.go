package sensor

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/rover/log2"
)

type LoopOptions[R any] struct {
	Name    string
	Address string // empty = discard mode without dial attempt
	Open    OpenFunc[R]
	Encoder Encoder[R]
	Dial    Dialer
	Log     *log2.Log
}

// Loop is acquire -> encode -> best-effort send cycle of one sensor.
// Loop owns its source and sink, nothing is shared with other loops.
type Loop[R any] struct {
	opt  LoopOptions[R]
	log  *log2.Log
	sink Sink
	buf  []byte
	stat Stat
}

func NewLoop[R any](opt LoopOptions[R]) (*Loop[R], error) {
	if opt.Name == "" {
		return nil, errors.NotValidf("code error sensor loop Name=empty")
	}
	if opt.Open == nil {
		return nil, errors.NotValidf("code error sensor loop=%s Open=nil", opt.Name)
	}
	if opt.Encoder == nil {
		return nil, errors.NotValidf("code error sensor loop=%s Encoder=nil", opt.Name)
	}
	if opt.Dial == nil {
		opt.Dial = NewTCPDialer(DefaultDialTimeout)
	}
	return &Loop[R]{
		opt: opt,
		log: opt.Log.Named(opt.Name),
	}, nil
}

func (l *Loop[R]) String() string { return l.opt.Name }
func (l *Loop[R]) Stat() *Stat    { return &l.stat }

// Run returns only on fatal acquisition error or ctx cancel.
// Hardware open error is fatal. Connect error switches loop to discard mode for its lifetime.
func (l *Loop[R]) Run(ctx context.Context) error {
	source, err := l.opt.Open(ctx)
	if err != nil {
		return errors.Annotatef(err, "%s open", l.opt.Name)
	}
	defer func() {
		if err := source.Close(); err != nil {
			l.log.Errorf("source close err=%v", err)
		}
	}()

	l.connect(ctx)
	defer l.disconnect()

	for {
		if err = ctx.Err(); err != nil {
			l.log.Infof("stop stat=%s", l.stat.String())
			return err
		}
		reading, err := source.Acquire()
		if err != nil {
			if IsTimeout(err) {
				l.stat.Timeouts.Add(1)
				continue
			}
			l.log.Errorf("acquire err=%v stat=%s", err, l.stat.String())
			return errors.Annotatef(err, "%s acquire", l.opt.Name)
		}
		l.stat.Acquired.Add(1)

		result := l.opt.Encoder.Encode(reading)
		if !result.Ok() {
			l.stat.Skipped.Add(1)
			l.log.Debugf("skip frame: %v", result.Skip)
			continue
		}
		l.send(result.Frame)
	}
}

func (l *Loop[R]) connect(ctx context.Context) {
	if l.opt.Address == "" {
		l.log.Infof("no address, discard mode")
		return
	}
	conn, err := l.opt.Dial(ctx, l.opt.Address)
	if err != nil {
		l.log.Errorf("connect address=%s err=%v, discard mode", l.opt.Address, err)
		return
	}
	l.log.Infof("connected address=%s", l.opt.Address)
	l.sink = NewStreamSink(conn, &l.stat.Bytes)
}

func (l *Loop[R]) disconnect() {
	if l.sink == nil {
		return
	}
	if err := l.sink.Close(); err != nil {
		l.log.Debugf("sink close err=%v", err)
	}
	l.sink = nil
}

// send writes whole frame as one buffer, so prefix and payload go out together.
// Write error does not stop the loop and keeps the same connection.
func (l *Loop[R]) send(f Frame) {
	if l.sink == nil {
		l.stat.Dropped.Add(1)
		return
	}
	l.buf = f.AppendWire(l.buf[:0])
	if err := l.sink.WriteFrame(l.buf); err != nil {
		l.stat.WriteErrors.Add(1)
		l.log.Errorf("send kind=%s size=%d err=%v", f.Kind(), len(l.buf), err)
		return
	}
	l.stat.Sent.Add(1)
	l.stat.LastSent.SetNow()
}
