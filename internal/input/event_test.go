package input

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Event
	}{
		{"dpad", `{"DPad":"Up"}`, Event{Kind: KindDPad, Direction: DirUp}},
		{"dpad enter", `{"DPad":"Enter"}`, Event{Kind: KindDPad, Direction: DirEnter}},
		{"text", `{"Text":"hi\n"}`, Event{Kind: KindText, Text: "hi\n"}},
		{"keyboard", `{"Keyboard":"Backspace"}`, Event{Kind: KindKeyboard, Key: KeyBackspace}},
		{"mouse move", `{"MouseMove":{"dx":1.5,"dy":-2}}`, Event{Kind: KindMouseMove, DX: 1.5, DY: -2}},
		{"mouse scroll", `{"MouseScroll":{"dx":0,"dy":3}}`, Event{Kind: KindMouseScroll, DY: 3}},
		{"mouse down", `{"MouseDown":"LeftButton"}`, Event{Kind: KindMouseDown, Button: ButtonLeft}},
		{"mouse up", `{"MouseUp":"RightButton"}`, Event{Kind: KindMouseUp, Button: ButtonRight}},
		{"mouse click", `{"MouseClick":"MiddleButton"}`, Event{Kind: KindMouseClick, Button: ButtonMiddle}},
		{"action", `{"Action":"AltTab"}`, Event{Kind: KindAction, Action: ActionAltTab}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.json))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{"DPad":`},
		{"not an object", `"Up"`},
		{"empty object", `{}`},
		{"two variants", `{"DPad":"Up","Text":"x"}`},
		{"unknown variant", `{"Teleport":"Mars"}`},
		{"unknown direction", `{"DPad":"Diagonal"}`},
		{"unknown key", `{"Keyboard":"F13"}`},
		{"unknown button", `{"MouseClick":"BackButton"}`},
		{"unknown action", `{"Action":"Shutdown"}`},
		{"missing dy", `{"MouseMove":{"dx":1}}`},
		{"string delta", `{"MouseMove":{"dx":"1","dy":2}}`},
		{"extra field", `{"MouseMove":{"dx":1,"dy":2,"dz":3}}`},
		{"text not string", `{"Text":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.json))
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Decode(%s) error = %v, want ErrInvalidEvent", tt.json, err)
			}
		})
	}
}

func TestToPixels(t *testing.T) {
	tests := []struct {
		in     float64
		want   int32
		wantOK bool
	}{
		{0, 0, true},
		{1.4, 1, true},
		{1.5, 2, true},
		{-2.5, -3, true},
		{2147483647, 2147483647, true},
		{2147483648, 0, false},
		{-2147483648, -2147483648, true},
		{-2147483649, 0, false},
		{1e300, 0, false},
	}

	for _, tt := range tests {
		got, ok := toPixels(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("toPixels(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
