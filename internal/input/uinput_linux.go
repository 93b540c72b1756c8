//go:build linux

package input

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Linux input-event-codes.h values used by the virtual device.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	synReport = 0

	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112

	keyLeftShift = 42
)

// uinput ioctl requests from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566

	busVirtual = 0x06
)

// DefaultUinputPath is where the kernel exposes the uinput device.
const DefaultUinputPath = "/dev/uinput"

var keyCodes = map[Key]uint16{
	KeyUp:        103,
	KeyDown:      108,
	KeyLeft:      105,
	KeyRight:     106,
	KeySpace:     57,
	KeyEscape:    1,
	KeyReturn:    28,
	KeyBackspace: 14,
	KeyDelete:    111,
	KeyTab:       15,
	KeyAlt:       56,
	KeyMeta:      125,
}

var buttonCodes = map[MouseButton]uint16{
	ButtonLeft:   btnLeft,
	ButtonRight:  btnRight,
	ButtonMiddle: btnMiddle,
}

type runeKey struct {
	code  uint16
	shift bool
}

// usLayout maps printable ASCII to key codes on a US keyboard.
var usLayout = buildUSLayout()

func buildUSLayout() map[rune]runeKey {
	m := make(map[rune]runeKey)
	rows := []struct {
		plain, shifted string
		first          uint16
	}{
		{"1234567890-=", "!@#$%^&*()_+", 2},
		{"qwertyuiop[]", "QWERTYUIOP{}", 16},
		{"asdfghjkl;'`", "ASDFGHJKL:\"~", 30},
		{"\\zxcvbnm,./", "|ZXCVBNM<>?", 43},
	}
	for _, row := range rows {
		shifted := []rune(row.shifted)
		for i, r := range []rune(row.plain) {
			code := row.first + uint16(i)
			m[r] = runeKey{code: code}
			m[shifted[i]] = runeKey{code: code, shift: true}
		}
	}
	m[' '] = runeKey{code: 57}
	m['\t'] = runeKey{code: 15}
	return m
}

// inputEvent mirrors struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// uinputUserDev mirrors the legacy struct uinput_user_dev.
type uinputUserDev struct {
	Name         [80]byte
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// UinputInjector drives a virtual keyboard and relative mouse through
// /dev/uinput.
type UinputInjector struct {
	f *os.File
}

// NewUinputInjector creates the virtual device. The caller needs write
// access to path (usually membership of the input group or a udev rule).
func NewUinputInjector(path string) (*UinputInjector, error) {
	if path == "" {
		path = DefaultUinputPath
	}
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	u := &UinputInjector{f: f}
	if err := u.setup(); err != nil {
		f.Close()
		return nil, err
	}
	return u, nil
}

func (u *UinputInjector) setup() error {
	fd := int(u.f.Fd())

	for _, ev := range []int{evKey, evRel, evSyn} {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, ev); err != nil {
			return fmt.Errorf("UI_SET_EVBIT %d: %w", ev, err)
		}
	}

	codes := make(map[uint16]bool)
	for _, code := range keyCodes {
		codes[code] = true
	}
	for _, k := range usLayout {
		codes[k.code] = true
	}
	for _, code := range buttonCodes {
		codes[code] = true
	}
	codes[keyLeftShift] = true
	for code := range codes {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(code)); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	for _, rel := range []int{relX, relY, relWheel, relHWheel} {
		if err := unix.IoctlSetInt(fd, uiSetRelBit, rel); err != nil {
			return fmt.Errorf("UI_SET_RELBIT %d: %w", rel, err)
		}
	}

	dev := uinputUserDev{
		Bustype: busVirtual,
		Vendor:  0x1209,
		Product: 0x5174,
		Version: 1,
	}
	copy(dev.Name[:], "macropinna remote")
	if err := binary.Write(u.f, binary.NativeEndian, &dev); err != nil {
		return fmt.Errorf("write uinput_user_dev: %w", err)
	}

	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	return nil
}

func (u *UinputInjector) emit(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	return binary.Write(u.f, binary.NativeEndian, &ev)
}

func (u *UinputInjector) sync() error {
	return u.emit(evSyn, synReport, 0)
}

func (u *UinputInjector) press(code uint16, value int32) error {
	if err := u.emit(evKey, code, value); err != nil {
		return err
	}
	return u.sync()
}

func (u *UinputInjector) click(code uint16) error {
	if err := u.press(code, 1); err != nil {
		return err
	}
	return u.press(code, 0)
}

func keyCode(k Key) (uint16, error) {
	code, ok := keyCodes[k]
	if !ok {
		return 0, fmt.Errorf("no key code for %s", k)
	}
	return code, nil
}

func (u *UinputInjector) KeyDown(k Key) error {
	code, err := keyCode(k)
	if err != nil {
		return err
	}
	return u.press(code, 1)
}

func (u *UinputInjector) KeyUp(k Key) error {
	code, err := keyCode(k)
	if err != nil {
		return err
	}
	return u.press(code, 0)
}

func (u *UinputInjector) KeyClick(k Key) error {
	code, err := keyCode(k)
	if err != nil {
		return err
	}
	return u.click(code)
}

// TypeRune types printable ASCII using a US layout.
func (u *UinputInjector) TypeRune(r rune) error {
	k, ok := usLayout[r]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedRune, r)
	}
	if !k.shift {
		return u.click(k.code)
	}
	if err := u.press(keyLeftShift, 1); err != nil {
		return err
	}
	clickErr := u.click(k.code)
	if err := u.press(keyLeftShift, 0); err != nil {
		return err
	}
	return clickErr
}

func (u *UinputInjector) MouseMove(dx, dy int32) error {
	if dx != 0 {
		if err := u.emit(evRel, relX, dx); err != nil {
			return err
		}
	}
	if dy != 0 {
		if err := u.emit(evRel, relY, dy); err != nil {
			return err
		}
	}
	return u.sync()
}

// MouseScroll sends wheel clicks. Positive dy scrolls down, matching the
// browser's wheel deltas, so it is negated for REL_WHEEL.
func (u *UinputInjector) MouseScroll(dx, dy int32) error {
	if dx != 0 {
		if err := u.emit(evRel, relHWheel, dx); err != nil {
			return err
		}
	}
	if dy != 0 {
		if err := u.emit(evRel, relWheel, -dy); err != nil {
			return err
		}
	}
	return u.sync()
}

func buttonCode(b MouseButton) (uint16, error) {
	code, ok := buttonCodes[b]
	if !ok {
		return 0, fmt.Errorf("no button code for %s", b)
	}
	return code, nil
}

func (u *UinputInjector) MouseDown(b MouseButton) error {
	code, err := buttonCode(b)
	if err != nil {
		return err
	}
	return u.press(code, 1)
}

func (u *UinputInjector) MouseUp(b MouseButton) error {
	code, err := buttonCode(b)
	if err != nil {
		return err
	}
	return u.press(code, 0)
}

func (u *UinputInjector) MouseClick(b MouseButton) error {
	code, err := buttonCode(b)
	if err != nil {
		return err
	}
	return u.click(code)
}

// Close destroys the virtual device.
func (u *UinputInjector) Close() error {
	unix.IoctlSetInt(int(u.f.Fd()), uiDevDestroy, 0)
	return u.f.Close()
}

// NewPlatformInjector opens the native backend for this OS.
func NewPlatformInjector() (Injector, error) {
	return NewUinputInjector(DefaultUinputPath)
}
