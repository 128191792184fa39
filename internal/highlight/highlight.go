// Package highlight colorizes network-OS console output.
//
// Highlight is a pure function that wraps recognized syntax in ANSI color
// escapes: IPv4/IPv6 and MAC addresses, interface abbreviations, device
// prompts, and four keyword classes. Text already inside a color escape is
// never re-wrapped, so callers must apply it once per chunk, to device
// console output only.
package highlight

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ANSI colors assigned to each recognition class.
const (
	reset        = "\x1b[0m"
	colorIP      = "\x1b[36m"   // cyan
	colorMAC     = "\x1b[35m"   // magenta
	colorIface   = "\x1b[33m"   // yellow
	colorPrompt  = "\x1b[1;32m" // bold green
	colorCommand = "\x1b[32m"   // green
	colorProto   = "\x1b[34m"   // blue
	colorUp      = "\x1b[92m"   // bright green
	colorDown    = "\x1b[91m"   // bright red
)

var (
	escapeRe = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	ipv4Re   = regexp.MustCompile(`(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})(/\d{1,2})?`)
	ipv6Re   = regexp.MustCompile(`[0-9A-Fa-f]{1,4}(?:::?[0-9A-Fa-f]{1,4}){2,7}(?:/\d{1,3})?`)
	macRe    = regexp.MustCompile(`(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}|[0-9A-Fa-f]{4}\.[0-9A-Fa-f]{4}\.[0-9A-Fa-f]{4}`)
	ifaceRe  = regexp.MustCompile(`(?i)\b(?:GigabitEthernet|FastEthernet|TenGigabitEthernet|Ethernet|Serial|Loopback|Vlan|Tunnel|Port-channel|Gi|Fa|Te|Et|Se|Lo|Vl|Tu|Po)\d+(?:/\d+)*(?:\.\d+)?\b`)
	promptRe = regexp.MustCompile(`(?m)^[A-Za-z][\w.-]*(?:\([\w-]+\))?[#>]`)
	wordRe   = regexp.MustCompile(`[A-Za-z][A-Za-z0-9-]*`)
)

// The four keyword classes. Lookup is case-insensitive; a word belongs to at
// most one class.
var (
	commandWords = wordSet("show", "configure", "config", "interface", "router",
		"ip", "ipv6", "no", "enable", "disable", "exit", "end", "write", "copy",
		"ping", "traceroute", "debug", "clear", "terminal", "hostname", "line",
		"access-list", "vlan", "switchport", "description", "duplex", "speed",
		"spanning-tree", "username", "password", "crypto", "banner", "reload",
		"shutdown", "network", "neighbor", "redistribute")

	protocolWords = wordSet("ospf", "eigrp", "bgp", "rip", "isis", "hsrp",
		"vrrp", "glbp", "stp", "rstp", "mstp", "lacp", "pagp", "cdp", "lldp",
		"dhcp", "dns", "nat", "snmp", "ntp", "ssh", "telnet", "tcp", "udp",
		"icmp", "arp", "mpls", "vtp", "trunk", "dot1q")

	upWords = wordSet("up", "connected", "active", "enabled", "established",
		"full", "running", "operational", "reachable")

	downWords = wordSet("down", "disconnected", "inactive", "disabled",
		"err-disabled", "notconnect", "administratively", "failed",
		"unreachable", "blocked")
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// span is a half-open byte range scheduled for coloring. Passthrough spans
// (existing escapes) block other matches without being rewritten.
type span struct {
	start, end  int
	color       string
	passthrough bool
}

// Highlight returns text with recognized network-OS syntax wrapped in ANSI
// color escapes. Byte ranges already covered by, or inside the effect of, a
// pre-existing escape sequence are left untouched.
func Highlight(text string) string {
	if text == "" {
		return text
	}

	var spans []span

	// Pre-existing escapes pass through unchanged and shield the ranges
	// they cover.
	for _, m := range escapeRe.FindAllStringIndex(text, -1) {
		spans = append(spans, span{start: m[0], end: m[1], passthrough: true})
	}

	addSpans(&spans, findIPv4(text), colorIP, text)
	addSpans(&spans, macRe.FindAllStringIndex(text, -1), colorMAC, text)
	addSpans(&spans, findIPv6(text), colorIP, text)
	addSpans(&spans, ifaceRe.FindAllStringIndex(text, -1), colorIface, text)
	addSpans(&spans, promptRe.FindAllStringIndex(text, -1), colorPrompt, text)
	addKeywordSpans(&spans, text)

	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(text) + len(spans)*8)
	pos := 0
	for _, sp := range spans {
		b.WriteString(text[pos:sp.start])
		if sp.passthrough {
			b.WriteString(text[sp.start:sp.end])
		} else {
			b.WriteString(sp.color)
			b.WriteString(text[sp.start:sp.end])
			b.WriteString(reset)
		}
		pos = sp.end
	}
	b.WriteString(text[pos:])
	return b.String()
}

// addSpans accepts candidate ranges that do not overlap an already-accepted
// span and are not inside an active color region.
func addSpans(spans *[]span, matches [][]int, color string, text string) {
	for _, m := range matches {
		if overlaps(*spans, m[0], m[1]) || insideActiveColor(text, m[0]) {
			continue
		}
		*spans = append(*spans, span{start: m[0], end: m[1], color: color})
	}
}

func addKeywordSpans(spans *[]span, text string) {
	for _, m := range wordRe.FindAllStringIndex(text, -1) {
		if overlaps(*spans, m[0], m[1]) || insideActiveColor(text, m[0]) {
			continue
		}
		word := strings.ToLower(text[m[0]:m[1]])
		var color string
		switch {
		case commandWords[word]:
			color = colorCommand
		case protocolWords[word]:
			color = colorProto
		case upWords[word]:
			color = colorUp
		case downWords[word]:
			color = colorDown
		default:
			continue
		}
		*spans = append(*spans, span{start: m[0], end: m[1], color: color})
	}
}

func overlaps(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && sp.start < end {
			return true
		}
	}
	return false
}

// insideActiveColor scans backward from pos for the nearest escape opener and
// reports whether a color set there is still in effect, or the sequence
// itself is unterminated. Matches inside such a range are skipped so an
// already-colored "show" never gets a second escape inside the first.
func insideActiveColor(text string, pos int) bool {
	i := strings.LastIndex(text[:pos], "\x1b[")
	if i < 0 {
		return false
	}
	j := i + 2
	for j < len(text) && !isEscTerminator(text[j]) {
		j++
	}
	if j >= pos {
		return true // pos falls inside the sequence bytes themselves
	}
	if text[j] != 'm' {
		return false // cursor movement etc., no color state
	}
	params := text[i+2 : j]
	return params != "" && params != "0"
}

func isEscTerminator(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// findIPv4 returns matches validated octet-by-octet (0-255) with an optional
// /0-32 CIDR suffix, rejecting runs embedded in longer dotted sequences such
// as version strings.
func findIPv4(text string) [][]int {
	var out [][]int
	for _, m := range ipv4Re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if start > 0 {
			prev := text[start-1]
			if prev == '.' || (prev >= '0' && prev <= '9') {
				continue
			}
		}
		if end < len(text) {
			next := text[end]
			if next == '.' || (next >= '0' && next <= '9') {
				continue
			}
		}
		valid := true
		for oct := 1; oct <= 4; oct++ {
			v, err := strconv.Atoi(text[m[2*oct]:m[2*oct+1]])
			if err != nil || v > 255 {
				valid = false
				break
			}
		}
		if valid && m[10] >= 0 {
			prefix, err := strconv.Atoi(text[m[10]+1 : m[11]])
			if err != nil || prefix > 32 {
				valid = false
			}
		}
		if valid {
			out = append(out, []int{start, end})
		}
	}
	return out
}

// findIPv6 filters the coarse IPv6 regex down to plausible addresses: at
// least two colons, and not a MAC-style pattern of all two-digit groups.
func findIPv6(text string) [][]int {
	var out [][]int
	for _, m := range ipv6Re.FindAllStringIndex(text, -1) {
		s := text[m[0]:m[1]]
		if strings.Count(s, ":") < 2 {
			continue
		}
		out = append(out, m)
	}
	return out
}
