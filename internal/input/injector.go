package input

import (
	"errors"
	"fmt"
	"log"
	"math"
)

// Key is a logical key understood by every backend.
type Key int

const (
	KeyUp Key = iota + 1
	KeyDown
	KeyLeft
	KeyRight
	KeySpace
	KeyEscape
	KeyReturn
	KeyBackspace
	KeyDelete
	KeyTab
	KeyAlt
	KeyMeta
)

var keyNames = map[Key]string{
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeySpace:     "Space",
	KeyEscape:    "Escape",
	KeyReturn:    "Return",
	KeyBackspace: "Backspace",
	KeyDelete:    "Delete",
	KeyTab:       "Tab",
	KeyAlt:       "Alt",
	KeyMeta:      "Meta",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Key(%d)", int(k))
}

// MouseButton is a pointer button.
type MouseButton int

const (
	ButtonLeft MouseButton = iota + 1
	ButtonRight
	ButtonMiddle
)

func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "Left"
	case ButtonRight:
		return "Right"
	case ButtonMiddle:
		return "Middle"
	default:
		return fmt.Sprintf("MouseButton(%d)", int(b))
	}
}

// ErrUnsupportedRune is returned by backends that cannot type a character.
var ErrUnsupportedRune = errors.New("character not supported by backend")

// Injector is an OS input backend. Implementations need not be safe for
// concurrent use; the Actor is their only caller.
type Injector interface {
	KeyDown(Key) error
	KeyUp(Key) error
	KeyClick(Key) error
	TypeRune(rune) error
	MouseMove(dx, dy int32) error
	MouseScroll(dx, dy int32) error
	MouseDown(MouseButton) error
	MouseUp(MouseButton) error
	MouseClick(MouseButton) error
	Close() error
}

// toPixels rounds a fractional delta to the nearest int32. ok is false for
// NaN, infinities and values outside the int32 range.
func toPixels(v float64) (int32, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	r := math.Round(v)
	if r < math.MinInt32 || r > math.MaxInt32 {
		return 0, false
	}
	return int32(r), true
}

// LogInjector writes every operation to a logger instead of the OS. It backs
// the "log" input backend and hosts where no native backend exists.
type LogInjector struct {
	logger *log.Logger
}

// NewLogInjector creates a LogInjector. A nil logger uses log.Default().
func NewLogInjector(logger *log.Logger) *LogInjector {
	if logger == nil {
		logger = log.Default()
	}
	return &LogInjector{logger: logger}
}

func (l *LogInjector) KeyDown(k Key) error {
	l.logger.Printf("input: key down %s", k)
	return nil
}

func (l *LogInjector) KeyUp(k Key) error {
	l.logger.Printf("input: key up %s", k)
	return nil
}

func (l *LogInjector) KeyClick(k Key) error {
	l.logger.Printf("input: key click %s", k)
	return nil
}

func (l *LogInjector) TypeRune(r rune) error {
	l.logger.Printf("input: type %q", r)
	return nil
}

func (l *LogInjector) MouseMove(dx, dy int32) error {
	l.logger.Printf("input: mouse move %d,%d", dx, dy)
	return nil
}

func (l *LogInjector) MouseScroll(dx, dy int32) error {
	l.logger.Printf("input: mouse scroll %d,%d", dx, dy)
	return nil
}

func (l *LogInjector) MouseDown(b MouseButton) error {
	l.logger.Printf("input: mouse down %s", b)
	return nil
}

func (l *LogInjector) MouseUp(b MouseButton) error {
	l.logger.Printf("input: mouse up %s", b)
	return nil
}

func (l *LogInjector) MouseClick(b MouseButton) error {
	l.logger.Printf("input: mouse click %s", b)
	return nil
}

func (l *LogInjector) Close() error { return nil }
