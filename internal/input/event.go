// Package input decodes control events sent by remote devices and injects
// them into the host through a single-owner actor.
package input

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a control event variant. The values are the JSON tags.
type Kind string

const (
	KindDPad        Kind = "DPad"
	KindText        Kind = "Text"
	KindKeyboard    Kind = "Keyboard"
	KindMouseMove   Kind = "MouseMove"
	KindMouseScroll Kind = "MouseScroll"
	KindMouseDown   Kind = "MouseDown"
	KindMouseUp     Kind = "MouseUp"
	KindMouseClick  Kind = "MouseClick"
	KindAction      Kind = "Action"
)

// Direction is a DPad button.
type Direction string

const (
	DirUp    Direction = "Up"
	DirDown  Direction = "Down"
	DirLeft  Direction = "Left"
	DirRight Direction = "Right"
	DirEnter Direction = "Enter"
	DirExit  Direction = "Exit"
)

// Action is a named host shortcut.
type Action string

const (
	ActionHome   Action = "Home"
	ActionAltTab Action = "AltTab"
)

// Event is one decoded control event. Only the fields for Kind are set.
type Event struct {
	Kind      Kind
	Direction Direction
	Text      string
	Key       Key
	DX, DY    float64
	Button    MouseButton
	Action    Action
}

// ErrInvalidEvent wraps every decode failure.
var ErrInvalidEvent = errors.New("invalid control event")

var (
	directions = map[Direction]bool{DirUp: true, DirDown: true, DirLeft: true, DirRight: true, DirEnter: true, DirExit: true}
	actions    = map[Action]bool{ActionHome: true, ActionAltTab: true}
	buttons    = map[string]MouseButton{
		"LeftButton":   ButtonLeft,
		"RightButton":  ButtonRight,
		"MiddleButton": ButtonMiddle,
	}
	// keyboardKeys lists the keys a device may press by name.
	keyboardKeys = map[string]Key{
		"Backspace": KeyBackspace,
		"Delete":    KeyDelete,
		"Tab":       KeyTab,
		"Escape":    KeyEscape,
		"Enter":     KeyReturn,
	}
)

type delta struct {
	DX *float64 `json:"dx"`
	DY *float64 `json:"dy"`
}

// Decode parses one externally tagged event such as {"DPad":"Up"} or
// {"MouseMove":{"dx":1.5,"dy":-2}}.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("%w: want exactly one variant, got %d", ErrInvalidEvent, len(tagged))
	}

	var kind string
	var body json.RawMessage
	for k, v := range tagged {
		kind, body = k, v
	}

	ev := Event{Kind: Kind(kind)}
	switch ev.Kind {
	case KindDPad:
		s, err := decodeString(body)
		if err != nil {
			return err
		}
		if !directions[Direction(s)] {
			return fmt.Errorf("%w: unknown direction %q", ErrInvalidEvent, s)
		}
		ev.Direction = Direction(s)

	case KindText:
		s, err := decodeString(body)
		if err != nil {
			return err
		}
		ev.Text = s

	case KindKeyboard:
		s, err := decodeString(body)
		if err != nil {
			return err
		}
		key, ok := keyboardKeys[s]
		if !ok {
			return fmt.Errorf("%w: unknown key %q", ErrInvalidEvent, s)
		}
		ev.Key = key

	case KindMouseMove, KindMouseScroll:
		var d delta
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if d.DX == nil || d.DY == nil {
			return fmt.Errorf("%w: %s needs dx and dy", ErrInvalidEvent, kind)
		}
		ev.DX, ev.DY = *d.DX, *d.DY

	case KindMouseDown, KindMouseUp, KindMouseClick:
		s, err := decodeString(body)
		if err != nil {
			return err
		}
		button, ok := buttons[s]
		if !ok {
			return fmt.Errorf("%w: unknown button %q", ErrInvalidEvent, s)
		}
		ev.Button = button

	case KindAction:
		s, err := decodeString(body)
		if err != nil {
			return err
		}
		if !actions[Action(s)] {
			return fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, s)
		}
		ev.Action = Action(s)

	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidEvent, kind)
	}

	*e = ev
	return nil
}

func decodeString(body json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return s, nil
}
