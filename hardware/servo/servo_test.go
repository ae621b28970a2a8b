package servo

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
	"github.com/temoto/rover/log2"
)

type recorder struct {
	sync.Mutex
	values []byte
}

func (r *recorder) set(v byte) {
	r.Lock()
	r.values = append(r.values, v)
	r.Unlock()
}

func (r *recorder) get() []byte {
	r.Lock()
	defer r.Unlock()
	return append([]byte(nil), r.values...)
}

func mockLines(rec *recorder, flushErr error) *gpio_mock.MockLines {
	lines := &gpio_mock.MockLines{}
	lines.On("SetFunc", uint32(17)).Return(gpio.LineSetFunc(rec.set))
	lines.On("Flush").Return(flushErr)
	lines.On("Close").Return(nil)
	return lines
}

func TestServoPulses(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	lines := mockLines(rec, nil)
	s := New(lines, 17, 2*time.Millisecond, log2.NewTest(t, log2.LDebug))

	require.NoError(t, s.SetPulse(500*time.Microsecond))
	assert.Equal(t, 500*time.Microsecond, s.Pulse())
	assert.Eventually(t, func() bool { return atomic.LoadInt64(&s.cycles) >= 3 }, 5*time.Second, time.Millisecond)
	require.NoError(t, s.Close())

	values := rec.get()
	require.True(t, len(values) >= 6)
	assert.Equal(t, []byte{1, 0, 1, 0, 1, 0}, values[:6])
	assert.Equal(t, byte(0), values[len(values)-1])
	lines.AssertExpectations(t)

	assert.Error(t, s.SetPulse(time.Millisecond), "closed")
}

func TestServoPulseValidate(t *testing.T) {
	t.Parallel()
	s := New(mockLines(&recorder{}, nil), 17, 0, log2.NewTest(t, log2.LDebug))
	defer s.Close()
	assert.Equal(t, DefaultPeriod, s.period)
	assert.True(t, errors.IsNotValid(s.SetPulse(0)))
	assert.True(t, errors.IsNotValid(s.SetPulse(-time.Millisecond)))
	assert.True(t, errors.IsNotValid(s.SetPulse(DefaultPeriod)))
	assert.NoError(t, s.SetPulse(1500*time.Microsecond))
}

func TestServoFlushErrorLatched(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := New(mockLines(rec, errors.New("EBUSY")), 17, 2*time.Millisecond, log2.NewTest(t, log2.LDebug))
	defer s.Close()

	require.NoError(t, s.SetPulse(time.Millisecond))
	assert.Eventually(t, func() bool { return s.SetPulse(time.Millisecond) != nil }, 5*time.Second, time.Millisecond)
	err := s.SetPulse(time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EBUSY")
}
