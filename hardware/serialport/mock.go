package serialport

import (
	"bytes"
	"io"
	"sync"

	"github.com/temoto/rover/sensor"
)

// Mock is scripted Port for driver tests.
// Each Feed chunk is delivered by reads in order, empty chunk simulates read timeout.
// When script is exhausted Read returns io.EOF.
type Mock struct {
	mu      sync.Mutex
	chunks  [][]byte
	written bytes.Buffer
	DTR     []bool
	Resets  int
	Closed  bool
	// returned from Write when set
	WriteErr error
}

var _ Port = &Mock{}

func (m *Mock) Feed(chunks ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
}

func (m *Mock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.chunks) == 0 {
		return 0, io.EOF
	}
	c := m.chunks[0]
	if len(c) == 0 {
		m.chunks = m.chunks[1:]
		return 0, sensor.ErrTimeout
	}
	n := copy(b, c)
	if n == len(c) {
		m.chunks = m.chunks[1:]
	} else {
		m.chunks[0] = c[n:]
	}
	return n, nil
}

func (m *Mock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	return m.written.Write(b)
}

func (m *Mock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

func (m *Mock) SetDTR(dtr bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DTR = append(m.DTR, dtr)
	return nil
}

func (m *Mock) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resets++
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
