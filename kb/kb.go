// Package kb provides US keyboard layout mappings of DOM keys for use with
// synthesized keyboard events.
package kb

import (
	"unicode"

	"github.com/chromedp/cdproto/input"
)

// Key contains information for generating a key press based off the unicode
// value.
//
// Example data for the following runes:
//
//	'\r'  | ','   '<'   | 'a'   'A'
//	_________________________________
type Key struct {
	// Code is the key code:
	//	"Enter" | "Comma"     | "KeyA"
	Code string
	// Key is the key value:
	//	"Enter" | ","   "<"   | "a"   "A"
	Key string
	// Text is the text for printable keys:
	//	"\r"    | ","   "<"   | "a"   "A"
	Text string
	// Unmodified is the unmodified text for printable keys:
	//	"\r"    | ","   ","   | "a"   "a"
	Unmodified string
	// Native is the native scan code.
	Native int64
	// Windows is the windows virtual key code.
	//	0x0d    | 0xbc  0xbc  | 0x41  0x41
	Windows int64
	// Shift indicates whether or not the Shift modifier should be sent.
	Shift bool
	// Print indicates whether or not the character is a printable character
	// (ie, should a "char" event be generated).
	Print bool
}

// Keys is the map of unicode characters to their DOM key data.
var Keys = map[rune]*Key{
	'\b':   {"Backspace", "Backspace", "", "", 8, 8, false, false},
	'\t':   {"Tab", "Tab", "", "", 9, 9, false, false},
	'\r':   {"Enter", "Enter", "\r", "\r", 13, 13, false, true},
	'\x1b': {"Escape", "Escape", "", "", 27, 27, false, false},
	'\x7f': {"Delete", "Delete", "", "", 46, 46, false, false},
	' ':    {"Space", " ", " ", " ", 32, 32, false, true},
}

// punctuation lists the code, unshifted and shifted characters, and windows
// key code of the non alphanumeric printable keys.
var punctuation = []struct {
	code             string
	unshifted, shift rune
	windows          int64
}{
	{"Minus", '-', '_', 0xbd},
	{"Equal", '=', '+', 0xbb},
	{"BracketLeft", '[', '{', 0xdb},
	{"BracketRight", ']', '}', 0xdd},
	{"Backslash", '\\', '|', 0xdc},
	{"Semicolon", ';', ':', 0xba},
	{"Quote", '\'', '"', 0xde},
	{"Comma", ',', '<', 0xbc},
	{"Period", '.', '>', 0xbe},
	{"Slash", '/', '?', 0xbf},
	{"Backquote", '`', '~', 0xc0},
}

func init() {
	add := func(code string, unshifted, r rune, windows int64, shift bool) {
		Keys[r] = &Key{
			Code:       code,
			Key:        string(r),
			Text:       string(r),
			Unmodified: string(unshifted),
			Native:     windows,
			Windows:    windows,
			Shift:      shift,
			Print:      true,
		}
	}
	for r := 'a'; r <= 'z'; r++ {
		upper := unicode.ToUpper(r)
		code := "Key" + string(upper)
		add(code, r, r, int64(upper), false)
		add(code, r, upper, int64(upper), true)
	}
	const shiftedDigits = ")!@#$%^&*("
	for i, s := range shiftedDigits {
		r := '0' + rune(i)
		code := "Digit" + string(r)
		add(code, r, r, int64(r), false)
		add(code, r, s, int64(r), true)
	}
	for _, p := range punctuation {
		add(p.code, p.unshifted, p.unshifted, p.windows, false)
		add(p.code, p.unshifted, p.shift, p.windows, true)
	}
}

// EncodeUnidentified encodes a keyDown, char, and keyUp sequence for an
// unidentified rune.
func EncodeUnidentified(r rune) []*input.DispatchKeyEventParams {
	keyDown := input.DispatchKeyEventParams{
		Key: "Unidentified",
	}
	keyUp := keyDown
	keyDown.Type, keyUp.Type = input.KeyDown, input.KeyUp
	// printable, so create char event
	if unicode.IsPrint(r) {
		keyChar := keyDown
		keyChar.Type = input.KeyChar
		keyChar.Text = string(r)
		keyChar.UnmodifiedText = string(r)
		return []*input.DispatchKeyEventParams{&keyDown, &keyChar, &keyUp}
	}
	return []*input.DispatchKeyEventParams{&keyDown, &keyUp}
}

// Encode encodes a keyDown, char, and keyUp sequence for the specified rune.
func Encode(r rune) []*input.DispatchKeyEventParams {
	// force \n -> \r
	if r == '\n' {
		r = '\r'
	}
	v, ok := Keys[r]
	if !ok {
		return EncodeUnidentified(r)
	}
	keyDown := input.DispatchKeyEventParams{
		Key:                   v.Key,
		Code:                  v.Code,
		NativeVirtualKeyCode:  v.Native,
		WindowsVirtualKeyCode: v.Windows,
	}
	if v.Shift {
		keyDown.Modifiers |= input.ModifierShift
	}
	keyUp := keyDown
	keyDown.Type, keyUp.Type = input.KeyDown, input.KeyUp
	if v.Print {
		keyChar := keyDown
		keyChar.Type = input.KeyChar
		keyChar.Text = v.Text
		keyChar.UnmodifiedText = v.Unmodified
		// char events carry the character itself as the key code
		keyChar.NativeVirtualKeyCode = int64(r)
		keyChar.WindowsVirtualKeyCode = int64(r)
		return []*input.DispatchKeyEventParams{&keyDown, &keyChar, &keyUp}
	}
	return []*input.DispatchKeyEventParams{&keyDown, &keyUp}
}
