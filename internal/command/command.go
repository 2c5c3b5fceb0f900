package command

import (
	"fmt"
	"strings"
)

// Command is one of the fixed set of outbound commands a subscriber can send.
type Command string

const (
	CommandArm             Command = "arm"
	CommandDisarm          Command = "disarm"
	CommandSetMode         Command = "set_mode"
	CommandRebootAutopilot Command = "reboot_autopilot"
	CommandRCOverride      Command = "rc_override"
	CommandLong            Command = "command_long"
)

// Commands lists every accepted command in display order.
var Commands = []Command{
	CommandArm,
	CommandDisarm,
	CommandSetMode,
	CommandRebootAutopilot,
	CommandRCOverride,
	CommandLong,
}

// ParseCommand maps a wire name onto a Command.
func ParseCommand(name string) (Command, error) {
	for _, c := range Commands {
		if string(c) == name {
			return c, nil
		}
	}
	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = string(c)
	}
	return "", fmt.Errorf("unknown command %q (expected one of %s)", name, strings.Join(names, ", "))
}

// Request is one validated-by-shape command from a subscriber. Params is the
// free-form parameter mapping as decoded from the wire.
type Request struct {
	Command Command
	Params  map[string]any
}

// Result is what the subscriber sees after execution.
type Result struct {
	OK      bool   `json:"ok" cbor:"ok"`
	Message string `json:"message" cbor:"message"`
}

// Success is the result of every command the link accepted.
var Success = Result{OK: true, Message: "OK"}

// Failure builds a failed result.
func Failure(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}
