package control

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(t testing.TB, es ...Event) []byte {
	var b []byte
	var err error
	for _, e := range es {
		b, err = AppendFrame(b, e)
		require.NoError(t, err)
	}
	return b
}

func TestDecoderStream(t *testing.T) {
	t.Parallel()
	input := []Event{
		Lifecycle(KindConnected),
		ButtonValue(RightTrigger2, 0.75),
		AxisValue(LeftStickX, -0.5),
		Released(South),
	}
	dec := NewDecoder(bytes.NewReader(frames(t, input...)), 0)
	for _, expect := range input {
		e, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, expect, e)
	}
	_, err := dec.Next()
	assert.Equal(t, ErrEndOfStream, err)
	_, err = dec.Next()
	assert.Equal(t, ErrEndOfStream, err)
}

func TestDecoderHeaderError(t *testing.T) {
	t.Parallel()
	b := frames(t, Pressed(North))
	b = append(b, 7, 0) // partial length prefix
	dec := NewDecoder(bytes.NewReader(b), 0)
	_, err := dec.Next()
	require.NoError(t, err)
	_, err = dec.Next()
	assert.Equal(t, ErrEndOfStream, errors.Cause(err))
	assert.False(t, IsDecodeError(err))
}

// Declared length beyond available bytes must stop the stream, never resync at shifted offset.
func TestDecoderShortFrameFatal(t *testing.T) {
	t.Parallel()
	valid := frames(t, Pressed(West))
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(valid)+100))
	b = append(b, valid...)
	r := bytes.NewReader(b)
	dec := NewDecoder(r, 0)

	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, io.ErrUnexpectedEOF, errors.Cause(err.(*DecodeError).Err))
	assert.Equal(t, 0, r.Len())

	_, err2 := dec.Next()
	assert.Equal(t, err, err2)
}

func TestDecoderLimit(t *testing.T) {
	t.Parallel()
	b := binary.LittleEndian.AppendUint32(nil, 1000)
	b = append(b, make([]byte, 1000)...)
	dec := NewDecoder(bytes.NewReader(b), 100)
	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, "length", err.(*DecodeError).Op)
}

func TestDecoderMalformedFatal(t *testing.T) {
	t.Parallel()
	bad := []byte{0xa1, 0x6d}
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(bad)))
	b = append(b, bad...)
	b = append(b, frames(t, Pressed(South))...)
	dec := NewDecoder(bytes.NewReader(b), 0)

	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, "payload", err.(*DecodeError).Op)
	_, err = dec.Next()
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, err, dec.Err())
}

func TestDecoderEmptyFrame(t *testing.T) {
	t.Parallel()
	dec := NewDecoder(bytes.NewReader([]byte{0, 0, 0, 0}), 0)
	_, err := dec.Next()
	assert.True(t, IsDecodeError(err))
}

func TestEncoder(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Send(Pressed(South)))
	require.NoError(t, enc.Send(AxisValue(RightStickY, 1)))
	assert.Equal(t, frames(t, Pressed(South), AxisValue(RightStickY, 1)), buf.Bytes())

	assert.Error(t, enc.Send(Event{}))
}
