// Package control is the operator -> vehicle channel: gamepad events on the wire.
//
// Event record is CBOR, externally tagged by variant name:
//   "Connected"
//   {"ButtonPressed": "South"}
//   {"AxisChanged": ["LeftStickX", 0.5]}
package control

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindButtonPressed
	KindButtonRepeated
	KindButtonReleased
	KindButtonChanged
	KindAxisChanged
	KindConnected
	KindDisconnected
	KindDropped
)

var kindNames = [...]string{
	KindInvalid:        "Invalid",
	KindButtonPressed:  "ButtonPressed",
	KindButtonRepeated: "ButtonRepeated",
	KindButtonReleased: "ButtonReleased",
	KindButtonChanged:  "ButtonChanged",
	KindAxisChanged:    "AxisChanged",
	KindConnected:      "Connected",
	KindDisconnected:   "Disconnected",
	KindDropped:        "Dropped",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) unit() bool { return k >= KindConnected && k <= KindDropped }
func (k Kind) button() bool {
	return k == KindButtonPressed || k == KindButtonRepeated || k == KindButtonReleased
}
func (k Kind) valued() bool { return k == KindButtonChanged || k == KindAxisChanged }

func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if i != int(KindInvalid) && name == s {
			return Kind(i), true
		}
	}
	return KindInvalid, false
}

type Button uint8

const (
	ButtonUnknown Button = iota
	South
	East
	North
	West
	C
	Z
	LeftTrigger
	LeftTrigger2
	RightTrigger
	RightTrigger2
	Select
	Start
	Mode
	LeftThumb
	RightThumb
	DPadUp
	DPadDown
	DPadLeft
	DPadRight
)

var buttonNames = [...]string{
	ButtonUnknown: "Unknown",
	South:         "South",
	East:          "East",
	North:         "North",
	West:          "West",
	C:             "C",
	Z:             "Z",
	LeftTrigger:   "LeftTrigger",
	LeftTrigger2:  "LeftTrigger2",
	RightTrigger:  "RightTrigger",
	RightTrigger2: "RightTrigger2",
	Select:        "Select",
	Start:         "Start",
	Mode:          "Mode",
	LeftThumb:     "LeftThumb",
	RightThumb:    "RightThumb",
	DPadUp:        "DPadUp",
	DPadDown:      "DPadDown",
	DPadLeft:      "DPadLeft",
	DPadRight:     "DPadRight",
}

func (b Button) String() string {
	if int(b) < len(buttonNames) {
		return buttonNames[b]
	}
	return fmt.Sprintf("Button(%d)", uint8(b))
}

func ParseButton(s string) (Button, bool) {
	for i, name := range buttonNames {
		if name == s {
			return Button(i), true
		}
	}
	return ButtonUnknown, false
}

type Axis uint8

const (
	AxisUnknown Axis = iota
	LeftStickX
	LeftStickY
	LeftZ
	RightStickX
	RightStickY
	RightZ
	DPadX
	DPadY
)

var axisNames = [...]string{
	AxisUnknown: "Unknown",
	LeftStickX:  "LeftStickX",
	LeftStickY:  "LeftStickY",
	LeftZ:       "LeftZ",
	RightStickX: "RightStickX",
	RightStickY: "RightStickY",
	RightZ:      "RightZ",
	DPadX:       "DPadX",
	DPadY:       "DPadY",
}

func (a Axis) String() string {
	if int(a) < len(axisNames) {
		return axisNames[a]
	}
	return fmt.Sprintf("Axis(%d)", uint8(a))
}

func ParseAxis(s string) (Axis, bool) {
	for i, name := range axisNames {
		if name == s {
			return Axis(i), true
		}
	}
	return AxisUnknown, false
}

// Event is one operator input. Button is set for Button* kinds, Axis for AxisChanged.
// Value is meaningful for ButtonChanged and AxisChanged.
type Event struct {
	Kind   Kind
	Button Button
	Axis   Axis
	Value  float32
}

func Pressed(b Button) Event                { return Event{Kind: KindButtonPressed, Button: b} }
func Repeated(b Button) Event               { return Event{Kind: KindButtonRepeated, Button: b} }
func Released(b Button) Event               { return Event{Kind: KindButtonReleased, Button: b} }
func ButtonValue(b Button, v float32) Event { return Event{Kind: KindButtonChanged, Button: b, Value: v} }
func AxisValue(a Axis, v float32) Event     { return Event{Kind: KindAxisChanged, Axis: a, Value: v} }
func Lifecycle(k Kind) Event                { return Event{Kind: k} }

// id returns name of button or axis carried by event.
func (e Event) id() string {
	if e.Kind == KindAxisChanged {
		return e.Axis.String()
	}
	return e.Button.String()
}

func (e Event) Validate() error {
	switch {
	case e.Kind.unit():
		return nil
	case e.Kind.button(), e.Kind == KindButtonChanged:
		if int(e.Button) >= len(buttonNames) {
			return errors.NotValidf("event=%s button=%d", e.Kind, e.Button)
		}
	case e.Kind == KindAxisChanged:
		if int(e.Axis) >= len(axisNames) {
			return errors.NotValidf("event=%s axis=%d", e.Kind, e.Axis)
		}
	default:
		return errors.NotValidf("event kind=%d", e.Kind)
	}
	if e.Kind.valued() && (math.IsNaN(float64(e.Value)) || math.IsInf(float64(e.Value), 0)) {
		return errors.NotValidf("event=%s value=%v", e.Kind, e.Value)
	}
	return nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = (cbor.EncOptions{}).EncMode(); err != nil {
		panic("code error cbor EncMode err=" + err.Error())
	}
	if decMode, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}).DecMode(); err != nil {
		panic("code error cbor DecMode err=" + err.Error())
	}
}

func (e Event) MarshalCBOR() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	tag := e.Kind.String()
	switch {
	case e.Kind.unit():
		return encMode.Marshal(tag)
	case e.Kind.valued():
		return encMode.Marshal(map[string][]interface{}{tag: {e.id(), e.Value}})
	default:
		return encMode.Marshal(map[string]string{tag: e.id()})
	}
}

const (
	cborMajorText = 3
	cborMajorMap  = 5
)

func (e *Event) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return errors.NotValidf("event empty")
	}
	switch data[0] >> 5 {
	case cborMajorText:
		var tag string
		if err := decMode.Unmarshal(data, &tag); err != nil {
			return errors.Annotate(err, "event tag")
		}
		k, ok := ParseKind(tag)
		if !ok || !k.unit() {
			return errors.NotValidf("event tag=%q", tag)
		}
		*e = Event{Kind: k}
		return nil

	case cborMajorMap:
		var m map[string]cbor.RawMessage
		if err := decMode.Unmarshal(data, &m); err != nil {
			return errors.Annotate(err, "event map")
		}
		if len(m) != 1 {
			return errors.NotValidf("event map len=%d", len(m))
		}
		for tag, raw := range m {
			return e.unmarshalVariant(tag, raw)
		}
	}
	return errors.NotValidf("event cbor major=%d", data[0]>>5)
}

func (e *Event) unmarshalVariant(tag string, raw cbor.RawMessage) error {
	k, ok := ParseKind(tag)
	if !ok || k.unit() {
		return errors.NotValidf("event tag=%q", tag)
	}
	var id string
	x := Event{Kind: k}
	if k.valued() {
		var fields []cbor.RawMessage
		if err := decMode.Unmarshal(raw, &fields); err != nil {
			return errors.Annotatef(err, "event=%s fields", tag)
		}
		if len(fields) != 2 {
			return errors.NotValidf("event=%s fields len=%d", tag, len(fields))
		}
		if err := decMode.Unmarshal(fields[0], &id); err != nil {
			return errors.Annotatef(err, "event=%s id", tag)
		}
		if err := decMode.Unmarshal(fields[1], &x.Value); err != nil {
			return errors.Annotatef(err, "event=%s value", tag)
		}
	} else if err := decMode.Unmarshal(raw, &id); err != nil {
		return errors.Annotatef(err, "event=%s id", tag)
	}

	if k == KindAxisChanged {
		if x.Axis, ok = ParseAxis(id); !ok {
			return errors.NotValidf("event=%s axis=%q", tag, id)
		}
	} else if x.Button, ok = ParseButton(id); !ok {
		return errors.NotValidf("event=%s button=%q", tag, id)
	}
	*e = x
	return nil
}
