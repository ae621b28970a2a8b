package control

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCBOR(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		event Event
		wire  string
	}{
		{"unit", Lifecycle(KindConnected), "69436f6e6e6563746564"},
		{"button", Pressed(South), "a16d427574746f6e5072657373656465536f757468"},
		{"axis", AxisValue(LeftStickX, 0.5), "a16b417869734368616e676564826a4c656674537469636b58fa3f000000"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			b, err := c.event.MarshalCBOR()
			require.NoError(t, err)
			assert.Equal(t, c.wire, hex.EncodeToString(b))

			var e Event
			require.NoError(t, e.UnmarshalCBOR(b))
			if diff := cmp.Diff(c.event, e); diff != "" {
				t.Errorf("decoded event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventUnmarshalFloatWidth(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		wire   string
		expect Event
	}{
		{"f64", "a16d427574746f6e4368616e676564826d52696768745472696767657232fb3fe0000000000000", ButtonValue(RightTrigger2, 0.5)},
		{"f16", "a16b417869734368616e676564826a4c656674537469636b58f93800", AxisValue(LeftStickX, 0.5)},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			b, err := hex.DecodeString(c.wire)
			require.NoError(t, err)
			var e Event
			require.NoError(t, e.UnmarshalCBOR(b))
			assert.Equal(t, c.expect, e)
		})
	}
}

func TestEventUnmarshalInvalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		wire []byte
	}{
		{"empty", nil},
		{"integer", []byte{0x01}},
		{"unknown-unit", append([]byte{0x64}, "Nope"...)},
		{"valued-as-unit", append([]byte{0x6b}, "AxisChanged"...)},
		{"unit-as-map", mustMarshal(t, map[string]string{"Connected": "South"})},
		{"unknown-button", mustMarshal(t, map[string]string{"ButtonPressed": "Fire"})},
		{"unknown-axis", mustMarshal(t, map[string][]interface{}{"AxisChanged": {"Wheel", 0.5}})},
		{"fields-short", mustMarshal(t, map[string][]interface{}{"AxisChanged": {"LeftStickX"}})},
		{"value-text", mustMarshal(t, map[string][]interface{}{"AxisChanged": {"LeftStickX", "half"}})},
		{"two-entries", mustMarshal(t, map[string]string{"ButtonPressed": "South", "ButtonReleased": "South"})},
		{"truncated", []byte{0xa1, 0x6d, 'B'}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var e Event
			assert.Error(t, e.UnmarshalCBOR(c.wire))
			assert.Equal(t, Event{}, e)
		})
	}
}

func TestEventMarshalInvalid(t *testing.T) {
	t.Parallel()
	_, err := Event{}.MarshalCBOR()
	assert.True(t, errors.IsNotValid(err))
	_, err = AxisValue(LeftStickX, float32(math.NaN())).MarshalCBOR()
	assert.True(t, errors.IsNotValid(err))
	_, err = Pressed(Button(200)).MarshalCBOR()
	assert.True(t, errors.IsNotValid(err))
}

func TestEventText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text  string
		event Event
	}{
		{"Connected", Lifecycle(KindConnected)},
		{"Dropped", Lifecycle(KindDropped)},
		{"ButtonPressed South", Pressed(South)},
		{"ButtonReleased DPadUp", Released(DPadUp)},
		{"ButtonRepeated Start", Repeated(Start)},
		{"ButtonChanged LeftTrigger2 0.25", ButtonValue(LeftTrigger2, 0.25)},
		{"AxisChanged RightStickY -1", AxisValue(RightStickY, -1)},
	}
	for _, c := range cases {
		c := c
		t.Run(c.text, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.text, c.event.String())
			e, err := ParseEvent("  " + c.text + "\n")
			require.NoError(t, err)
			assert.Equal(t, c.event, e)
		})
	}
}

func TestParseEventInvalid(t *testing.T) {
	t.Parallel()
	for _, s := range []string{
		"",
		"Jump",
		"Invalid",
		"Connected South",
		"ButtonPressed",
		"ButtonPressed Fire",
		"AxisChanged LeftStickX",
		"AxisChanged South 0.5",
		"AxisChanged LeftStickX half",
		"AxisChanged LeftStickX NaN",
	} {
		_, err := ParseEvent(s)
		assert.Error(t, err, "input=%q", s)
	}
}

func mustMarshal(t testing.TB, v interface{}) []byte {
	b, err := encMode.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestWords(t *testing.T) {
	t.Parallel()
	words := Words()
	assert.Len(t, words, 8+19+8)
	assert.Contains(t, words, "AxisChanged")
	assert.Contains(t, words, "RightTrigger2")
	assert.Contains(t, words, "DPadY")
	assert.NotContains(t, words, "Unknown")
	assert.NotContains(t, words, "Invalid")
}
