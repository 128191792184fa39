package broadcast

import "testing"

func TestParseCommandNotACommand(t *testing.T) {
	for _, line := range []string{"show ip route", "", "conf t", "a:", "no :colon here"} {
		if cmd, ok := ParseCommand(line); ok {
			t.Errorf("ParseCommand(%q) = %+v, want not-a-command", line, cmd)
		}
	}
}

func TestParseCommandVerbs(t *testing.T) {
	cases := []struct {
		line string
		want Command
	}{
		{":a", Command{Kind: CmdAll}},
		{":all", Command{Kind: CmdAll}},
		{":A", Command{Kind: CmdAll}},
		{":l", Command{Kind: CmdLocal}},
		{":local", Command{Kind: CmdLocal}},
		{":g Routers", Command{Kind: CmdGroup, Arg: "Routers"}},
		{":group Core Routers", Command{Kind: CmdGroup, Arg: "Core Routers"}},
		{":m R-* Routers", Command{Kind: CmdMove, Arg: "R-*", Fragment: "Routers"}},
		{":move R-1", Command{Kind: CmdMove, Arg: "R-1"}},
		{":m SW-? Access Layer", Command{Kind: CmdMove, Arg: "SW-?", Fragment: "Access Layer"}},
		{":s Routers", Command{Kind: CmdSwitch, Arg: "Routers"}},
		{":switch all", Command{Kind: CmdSwitch, Arg: "all"}},
		{":?", Command{Kind: CmdHelp}},
		{":help", Command{Kind: CmdHelp}},
		{"  :a  ", Command{Kind: CmdAll}},
	}
	for _, c := range cases {
		got, ok := ParseCommand(c.line)
		if !ok {
			t.Errorf("ParseCommand(%q) not consumed", c.line)
			continue
		}
		if got != c.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestParseCommandMalformedIsConsumed(t *testing.T) {
	// Malformed colon-lines must never leak into sessions as keystrokes.
	for _, line := range []string{":", ":x", ":g", ":m", ":s", ":bogus verb here"} {
		cmd, ok := ParseCommand(line)
		if !ok {
			t.Errorf("ParseCommand(%q) not consumed", line)
			continue
		}
		if cmd.Kind != CmdUnknown {
			t.Errorf("ParseCommand(%q).Kind = %v, want CmdUnknown", line, cmd.Kind)
		}
	}
}

func TestTranslateKey(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"enter", "\r"},
		{"backspace", "\x7f"},
		{"tab", "\t"},
		{"escape", "\x1b"},
		{"ctrl+c", "\x03"},
		{"ctrl+z", "\x1a"},
		{"up", "\x1b[A"},
		{"left", "\x1b[D"},
	}
	for _, c := range cases {
		got, ok := TranslateKey(c.name)
		if !ok {
			t.Errorf("TranslateKey(%q) not recognized", c.name)
			continue
		}
		if string(got) != c.want {
			t.Errorf("TranslateKey(%q) = %q, want %q", c.name, got, c.want)
		}
	}
	if _, ok := TranslateKey("super+hyper+x"); ok {
		t.Error("unknown key name should not translate")
	}
}
