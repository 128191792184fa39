package broadcast

import "strings"

// CommandKind identifies a parsed colon-command.
type CommandKind int

const (
	// CmdUnknown is an unrecognized colon-line. It is still consumed so it
	// never leaks into a live session as literal keystrokes.
	CmdUnknown CommandKind = iota
	// CmdAll switches broadcast targeting to every enabled session.
	CmdAll
	// CmdLocal switches targeting to the currently viewed group.
	CmdLocal
	// CmdGroup switches targeting to a named group.
	CmdGroup
	// CmdMove bulk-assigns sessions matching a glob pattern to a group, or
	// ungroups them when no group fragment is given.
	CmdMove
	// CmdSwitch changes which group is being viewed.
	CmdSwitch
	// CmdHelp displays usage; it mutates nothing.
	CmdHelp
)

// Command is one parsed colon-command line.
type Command struct {
	Kind CommandKind
	// Arg is the group name for CmdGroup/CmdSwitch and the glob pattern
	// for CmdMove.
	Arg string
	// Fragment is CmdMove's optional group-name fragment.
	Fragment string
}

// ParseCommand recognizes a colon-command line. It returns ok=false when the
// line is not a command at all (no leading colon) and should be broadcast as
// keystrokes. Lines with a leading colon always parse; malformed ones come
// back as CmdUnknown so the caller consumes them without side effects.
func ParseCommand(line string) (Command, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, ":") {
		return Command{}, false
	}

	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return Command{Kind: CmdUnknown}, true
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "a", "all":
		return Command{Kind: CmdAll}, true
	case "l", "local":
		return Command{Kind: CmdLocal}, true
	case "g", "group":
		if len(args) == 0 {
			return Command{Kind: CmdUnknown}, true
		}
		return Command{Kind: CmdGroup, Arg: strings.Join(args, " ")}, true
	case "m", "move":
		if len(args) == 0 {
			return Command{Kind: CmdUnknown}, true
		}
		cmd := Command{Kind: CmdMove, Arg: args[0]}
		if len(args) > 1 {
			cmd.Fragment = strings.Join(args[1:], " ")
		}
		return cmd, true
	case "s", "switch":
		if len(args) == 0 {
			return Command{Kind: CmdUnknown}, true
		}
		return Command{Kind: CmdSwitch, Arg: strings.Join(args, " ")}, true
	case "?", "help":
		return Command{Kind: CmdHelp}, true
	default:
		return Command{Kind: CmdUnknown}, true
	}
}
