package control

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// String is text form accepted by ParseEvent: "Connected", "ButtonPressed South", "AxisChanged LeftStickX -0.5".
func (e Event) String() string {
	switch {
	case e.Kind.unit():
		return e.Kind.String()
	case e.Kind.valued():
		return e.Kind.String() + " " + e.id() + " " + strconv.FormatFloat(float64(e.Value), 'g', -1, 32)
	case e.Kind.button():
		return e.Kind.String() + " " + e.id()
	}
	return e.Kind.String()
}

func ParseEvent(s string) (Event, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return Event{}, errors.NotValidf("event text empty")
	}
	k, ok := ParseKind(parts[0])
	if !ok {
		return Event{}, errors.NotValidf("event kind=%q", parts[0])
	}
	want := 1
	switch {
	case k.button():
		want = 2
	case k.valued():
		want = 3
	}
	if len(parts) != want {
		return Event{}, errors.NotValidf("event=%s fields=%d expected=%d", k, len(parts), want)
	}

	e := Event{Kind: k}
	if want >= 2 {
		if k == KindAxisChanged {
			if e.Axis, ok = ParseAxis(parts[1]); !ok {
				return Event{}, errors.NotValidf("event=%s axis=%q", k, parts[1])
			}
		} else if e.Button, ok = ParseButton(parts[1]); !ok {
			return Event{}, errors.NotValidf("event=%s button=%q", k, parts[1])
		}
	}
	if want == 3 {
		v, err := strconv.ParseFloat(parts[2], 32)
		if err != nil {
			return Event{}, errors.Annotatef(err, "event=%s value", k)
		}
		e.Value = float32(v)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Words lists every kind, button and axis name valid in text form, for console completion.
func Words() []string {
	words := make([]string, 0, len(kindNames)+len(buttonNames)+len(axisNames))
	words = append(words, kindNames[KindInvalid+1:]...)
	words = append(words, buttonNames[ButtonUnknown+1:]...)
	words = append(words, axisNames[AxisUnknown+1:]...)
	return words
}
