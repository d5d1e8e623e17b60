// Package cli parses the vaani command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun      Command = "run"
	CommandStatus   Command = "status"
	CommandResume   Command = "resume"
	CommandPause    Command = "pause"
	CommandSubmit   Command = "submit"
	CommandSay      Command = "say"
	CommandDictate  Command = "dictate"
	CommandLanguage Command = "language"
	CommandCommands Command = "commands"
	CommandDevices  Command = "devices"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

// arity describes how many positional arguments a command takes.
type arity struct {
	min, max int // max < 0 means unbounded
	usage    string
}

var validCommands = map[Command]arity{
	CommandRun:      {},
	CommandStatus:   {},
	CommandResume:   {},
	CommandPause:    {},
	CommandSubmit:   {min: 1, max: -1, usage: "TEXT"},
	CommandSay:      {min: 1, max: -1, usage: "TEXT"},
	CommandDictate:  {min: 1, max: 1, usage: "FIELD"},
	CommandLanguage: {min: 1, max: 1, usage: "TAG"},
	CommandCommands: {max: 1, usage: "[TAG]"},
	CommandDevices:  {},
	CommandDoctor:   {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	Args       []string
	ConfigPath string
	ShowHelp   bool
}

// Forwarded reports whether the command is served by a running runtime over IPC.
func (p Parsed) Forwarded() bool {
	switch p.Command {
	case CommandStatus, CommandResume, CommandPause, CommandSubmit, CommandSay, CommandDictate, CommandLanguage:
		return true
	default:
		return false
	}
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			want, ok := validCommands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			rest := args[i+1:]
			if len(rest) < want.min {
				return Parsed{}, fmt.Errorf("%s requires %s", arg, want.usage)
			}
			if want.max >= 0 && len(rest) > want.max {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}

			parsed.Command = cmd
			parsed.Args = append([]string(nil), rest...)
			parsed.ShowHelp = cmd == CommandHelp
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Runtime:
  run             Host the voice runtime and the front-end bridge

Control (forwarded to a running runtime):
  status          Print current state and language
  resume          Open the microphone for commands
  pause           Close the microphone
  submit TEXT     Run TEXT as if it had been spoken
  say TEXT        Speak TEXT
  dictate FIELD   Capture a spoken value into form field FIELD
  language TAG    Switch command language (for example en, hi)

Local:
  commands [TAG]  List command phrases per language
  devices         List available input devices
  doctor          Run configuration and environment checks
  version         Print version information
  help            Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/vaani/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
