package broadcast

// controlKeys maps renderer key names to the bytes a terminal would send.
// Regular printable input is broadcast as typed; only these named keys need
// translation before fan-out.
var controlKeys = map[string][]byte{
	"enter":     {'\r'},
	"backspace": {0x7f},
	"tab":       {'\t'},
	"escape":    {0x1b},
	"ctrl+c":    {0x03},
	"ctrl+d":    {0x04},
	"ctrl+z":    {0x1a},
	"ctrl+l":    {0x0c},
	"ctrl+u":    {0x15},
	"ctrl+w":    {0x17},
	"ctrl+a":    {0x01},
	"ctrl+e":    {0x05},
	"up":        []byte("\x1b[A"),
	"down":      []byte("\x1b[B"),
	"right":     []byte("\x1b[C"),
	"left":      []byte("\x1b[D"),
}

// TranslateKey returns the control byte or ANSI escape sequence for a named
// key, and whether the name is recognized.
func TranslateKey(name string) ([]byte, bool) {
	b, ok := controlKeys[name]
	return b, ok
}
