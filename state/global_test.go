package state

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rover/config"
	"github.com/temoto/rover/control"
	"github.com/temoto/rover/drive"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/sensor"
)

const rmcLine = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n"

type fakeSource[R any] struct {
	sync.Mutex
	items []R
}

func (s *fakeSource[R]) Acquire() (R, error) {
	s.Lock()
	defer s.Unlock()
	if len(s.items) != 0 {
		r := s.items[0]
		s.items = s.items[1:]
		return r, nil
	}
	time.Sleep(time.Millisecond)
	var zero R
	return zero, sensor.ErrTimeout
}

func (s *fakeSource[R]) Close() error { return nil }

func fakeOpener[R any](items ...R) sensor.OpenFunc[R] {
	return func(ctx context.Context) (sensor.Source[R], error) {
		return &fakeSource[R]{items: items}, nil
	}
}

type recordChannel struct {
	sync.Mutex
	values []float32
}

func (c *recordChannel) Set(v float32) error {
	c.Lock()
	c.values = append(c.values, v)
	c.Unlock()
	return nil
}

func (c *recordChannel) get() []float32 {
	c.Lock()
	defer c.Unlock()
	return append([]float32(nil), c.values...)
}

type nopServo struct{}

func (nopServo) SetPulse(time.Duration) error { return nil }

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func readConfig(t testing.TB, s string) *config.Config {
	log := log2.NewTest(t, log2.LDebug)
	fs := config.NewMockFullReader(map[string]string{"test-inline": s})
	c, err := config.ReadConfig(log, fs, "test-inline")
	require.NoError(t, err)
	return c
}

func TestRunAll(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)

	sink, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer sink.Close()
	sinkPort := sink.Addr().(*net.TCPAddr).Port

	cfg := readConfig(t, fmt.Sprintf(`
camera { enable = true device = "/dev/video9" }
lidar { enable = true device = "/dev/ttyX" }
gps { enable = true device = "/dev/ttyY" ip = "127.0.0.1" port = %d }
controller { enable = true port = 7000 }
`, sinkPort))

	drv := &recordChannel{}
	closed := &closeCounter{}
	listenCh := make(chan net.Addr, 1)
	g := NewGlobal(log)
	g.Hardware = Hardware{
		Camera: fakeOpener[sensor.RawImage](),
		Lidar:  fakeOpener(sensor.Scan{{Angle: 10, Distance: 0.5}}),
		GPS:    fakeOpener(rmcLine),
		Actuators: func(ctx context.Context) (drive.Actuators, io.Closer, error) {
			return drive.Actuators{Drive: drv, Steer: nopServo{}}, closed, nil
		},
		Listen: func(ctx context.Context, address string) (net.Listener, error) {
			assert.Equal(t, "0.0.0.0:7000", address)
			ll, err := net.Listen("tcp", "127.0.0.1:0")
			if err == nil {
				listenCh <- ll.Addr()
			}
			return ll, err
		},
	}
	require.NoError(t, g.Init(cfg))

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	// position frame
	conn, err := sink.Accept()
	require.NoError(t, err)
	defer conn.Close()
	var pos [sensor.PositionSize]byte
	_, err = io.ReadFull(conn, pos[:])
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, math.Float32frombits(binary.LittleEndian.Uint32(pos[:4])), 1e-4)

	// control event reaches actuator
	var addr net.Addr
	select {
	case addr = <-listenCh:
	case <-time.After(5 * time.Second):
		t.Fatal("control listen timeout")
	}
	cc, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer cc.Close()
	require.NoError(t, control.NewEncoder(cc).Send(control.ButtonValue(control.RightTrigger2, 0.5)))
	assert.Eventually(t, func() bool {
		v := drv.get()
		return len(v) == 1 && v[0] == 0.5
	}, 5*time.Second, time.Millisecond)

	g.Stop()
	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, 1, closed.n)
}

func TestRunOpenFailure(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	g := NewGlobal(log)
	g.Hardware.Lidar = func(ctx context.Context) (sensor.Source[sensor.Scan], error) {
		return nil, errors.New("no such device")
	}
	require.NoError(t, g.Init(readConfig(t, `lidar { enable = true device = "/dev/ttyX" }`)))
	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lidar open")
	assert.Contains(t, err.Error(), "no such device")
	assert.True(t, g.Alive.IsStopping() || g.Alive.IsFinished())
}

func TestActuatorsFailure(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	g := NewGlobal(log)
	g.Hardware.Actuators = func(ctx context.Context) (drive.Actuators, io.Closer, error) {
		return drive.Actuators{}, nil, errors.New("i2c nack")
	}
	require.NoError(t, g.Init(readConfig(t, `controller { enable = true port = 7000 }`)))
	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control actuators")
}

func TestTasks(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	g := NewGlobal(log)
	_, err := g.Tasks()
	assert.True(t, errors.IsNotValid(err))

	require.NoError(t, g.Init(readConfig(t, `
camera { enable = true device = "/dev/video0" }
gps { enable = true device = "/dev/ttyAMA0" }
controller { enable = true port = 7000 layout = "differential" }
`)))
	assert.NotNil(t, g.Hardware.Camera)
	assert.NotNil(t, g.Hardware.Lidar)
	assert.NotNil(t, g.Hardware.Dial)
	tasks, err := g.Tasks()
	require.NoError(t, err)
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.String())
	}
	assert.Equal(t, []string{"camera", "gps", "control"}, names)

	empty := NewGlobal(log)
	require.NoError(t, empty.Init(readConfig(t, "")))
	err = empty.Run(context.Background())
	assert.True(t, errors.IsNotValid(err))
}

func TestInitInvalid(t *testing.T) {
	t.Parallel()
	g := NewGlobal(log2.NewTest(t, log2.LDebug))
	assert.Error(t, g.Init(nil))
	c := &config.Config{}
	c.Camera.Enable = true
	assert.Error(t, g.Init(c))
}
