// Package pad converts Linux gamepad input events into control events, operator side.
package pad

import (
	"github.com/temoto/inputevent-go"
	"github.com/temoto/rover/control"
)

// linux/input-event-codes.h
const (
	evKey = 0x01
	evAbs = 0x03

	absX     = 0x00
	absY     = 0x01
	absZ     = 0x02
	absRX    = 0x03
	absRY    = 0x04
	absRZ    = 0x05
	absHat0X = 0x10
	absHat0Y = 0x11
)

var buttonCodes = map[uint16]control.Button{
	0x130: control.South, // BTN_SOUTH, BTN_A
	0x131: control.East,
	0x132: control.C,
	0x133: control.North,
	0x134: control.West,
	0x135: control.Z,
	0x136: control.LeftTrigger,
	0x137: control.RightTrigger,
	0x138: control.LeftTrigger2,
	0x139: control.RightTrigger2,
	0x13a: control.Select,
	0x13b: control.Start,
	0x13c: control.Mode,
	0x13d: control.LeftThumb,
	0x13e: control.RightThumb,
	0x220: control.DPadUp,
	0x221: control.DPadDown,
	0x222: control.DPadLeft,
	0x223: control.DPadRight,
}

// AbsRange is raw axis range as reported by EVIOCGABS.
type AbsRange struct {
	Min int32
	Max int32
}

type absKind uint8

const (
	absStick   absKind = iota // [-1,1]
	absTrigger                // [0,1] as ButtonChanged
)

type absMap struct {
	kind   absKind
	axis   control.Axis
	button control.Button
	invert bool // evdev Y grows down, control Y is up positive
	rng    AbsRange
}

var (
	stickRange   = AbsRange{Min: -32768, Max: 32767}
	triggerRange = AbsRange{Min: 0, Max: 255}
	hatRange     = AbsRange{Min: -1, Max: 1}
)

func defaultAbs() map[uint16]absMap {
	return map[uint16]absMap{
		absX:     {kind: absStick, axis: control.LeftStickX, rng: stickRange},
		absY:     {kind: absStick, axis: control.LeftStickY, rng: stickRange, invert: true},
		absRX:    {kind: absStick, axis: control.RightStickX, rng: stickRange},
		absRY:    {kind: absStick, axis: control.RightStickY, rng: stickRange, invert: true},
		absZ:     {kind: absTrigger, button: control.LeftTrigger2, rng: triggerRange},
		absRZ:    {kind: absTrigger, button: control.RightTrigger2, rng: triggerRange},
		absHat0X: {kind: absStick, axis: control.DPadX, rng: hatRange},
		absHat0Y: {kind: absStick, axis: control.DPadY, rng: hatRange, invert: true},
	}
}

type Config struct {
	Device   string
	Grab     bool
	Deadzone float32
	// override ABS_* ranges: stick and trigger
	StickRange   AbsRange
	TriggerRange AbsRange
}

// Mapper is not safe for concurrent use.
type Mapper struct {
	abs      map[uint16]absMap
	deadzone float32
	last     map[uint16]float32
}

func NewMapper(c Config) *Mapper {
	m := &Mapper{abs: defaultAbs(), deadzone: c.Deadzone, last: make(map[uint16]float32)}
	for code, a := range m.abs {
		switch {
		case a.kind == absStick && a.rng != hatRange && c.StickRange.Max > c.StickRange.Min:
			a.rng = c.StickRange
		case a.kind == absTrigger && c.TriggerRange.Max > c.TriggerRange.Min:
			a.rng = c.TriggerRange
		}
		m.abs[code] = a
	}
	return m
}

// Map appends control events produced by one input event.
// Digital L2/R2 also produce ButtonChanged 1/0, so drive loop sees them as analog triggers.
func (m *Mapper) Map(dst []control.Event, ev inputevent.InputEvent) []control.Event {
	switch ev.Type {
	case evKey:
		b, ok := buttonCodes[ev.Code]
		if !ok {
			return dst
		}
		switch inputevent.KeyEventState(ev.Value) {
		case inputevent.KeyStateDown:
			dst = append(dst, control.Pressed(b))
			if b == control.LeftTrigger2 || b == control.RightTrigger2 {
				dst = append(dst, control.ButtonValue(b, 1))
			}
		case inputevent.KeyStateUp:
			dst = append(dst, control.Released(b))
			if b == control.LeftTrigger2 || b == control.RightTrigger2 {
				dst = append(dst, control.ButtonValue(b, 0))
			}
		case inputevent.KeyStateHold:
			dst = append(dst, control.Repeated(b))
		}

	case evAbs:
		a, ok := m.abs[ev.Code]
		if !ok {
			return dst
		}
		v := normalize(ev.Value, a)
		if a.kind == absStick && v > -m.deadzone && v < m.deadzone {
			v = 0
		}
		if last, seen := m.last[ev.Code]; seen && last == v {
			return dst
		}
		m.last[ev.Code] = v
		if a.kind == absTrigger {
			return append(dst, control.ButtonValue(a.button, v))
		}
		return append(dst, control.AxisValue(a.axis, v))
	}
	return dst
}

func normalize(raw int32, a absMap) float32 {
	span := float32(a.rng.Max) - float32(a.rng.Min)
	if span <= 0 {
		return 0
	}
	norm := (float32(raw) - float32(a.rng.Min)) / span // [0,1]
	if a.kind == absStick {
		norm = norm*2 - 1
		if a.invert {
			norm = -norm
		}
		if norm < -1 {
			norm = -1
		} else if norm > 1 {
			norm = 1
		}
		return norm
	}
	if norm < 0 {
		norm = 0
	} else if norm > 1 {
		norm = 1
	}
	return norm
}
