// Package doctor runs readiness diagnostics for config, commands, tools, audio, and backends.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/vaani/internal/audio"
	"github.com/rbright/vaani/internal/backend"
	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/config"
	"github.com/rbright/vaani/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	}}
	if !cfg.Exists {
		checks[0].Message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}

	checks = append(checks, checkCommands(cfg.Config))
	checks = append(checks, checkSpeech(cfg.Config))

	running, runtimeCheck := checkRuntime(ctx)
	checks = append(checks, runtimeCheck)
	if cfg.Config.Speech.Backend == config.SpeechBridge && !running {
		checks = append(checks, checkBridgeAddress(cfg.Config.Bridge.Listen))
	}

	if cfg.Config.Indicator.Enable {
		switch cfg.Config.Indicator.Backend {
		case "desktop":
			checks = append(checks, checkBinary("busctl", "desktop notifications"))
		default:
			checks = append(checks, checkBinary("hyprctl", "Hyprland notifications"))
		}
	}

	checks = append(checks, checkAudioSelection(ctx))
	if strings.TrimSpace(cfg.Config.Backend.GRPC) != "" {
		checks = append(checks, checkBackend(ctx, cfg.Config.Backend))
	}

	return Report{Checks: checks}
}

// checkCommands loads the command table and confirms the configured language has a pack.
func checkCommands(cfg config.Config) Check {
	table, err := commands.Load(cfg.Commands.File)
	if err != nil {
		return Check{Name: "commands", Pass: false, Message: err.Error()}
	}
	lang := commands.Language(cfg.Language)
	if !table.Has(lang) {
		return Check{Name: "commands", Pass: false, Message: fmt.Sprintf("language %q has no command pack (have %v)", lang, table.Languages())}
	}
	source := "built-in catalog"
	if cfg.Commands.File != "" {
		source = cfg.Commands.File
	}
	return Check{Name: "commands", Pass: true, Message: fmt.Sprintf("%d phrases for %q from %s", len(table.Entries(lang)), lang, source)}
}

// checkSpeech validates the selected speech output backend.
func checkSpeech(cfg config.Config) Check {
	switch cfg.Speech.Backend {
	case config.SpeechCommand:
		return checkCommand(cfg.Speech.Command.Argv, "speech.command")
	case config.SpeechNone:
		return Check{Name: "speech", Pass: true, Message: "speech output disabled"}
	default:
		return Check{Name: "speech", Pass: true, Message: "speech output through the front-end bridge"}
	}
}

// checkRuntime reports whether a runtime already owns the control socket.
func checkRuntime(ctx context.Context) (bool, Check) {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return false, Check{Name: "runtime", Pass: false, Message: err.Error()}
	}
	alive, err := ipc.Probe(ctx, path, 200*time.Millisecond)
	if err != nil {
		return false, Check{Name: "runtime", Pass: false, Message: err.Error()}
	}
	if alive {
		return true, Check{Name: "runtime", Pass: true, Message: fmt.Sprintf("running at %s", path)}
	}
	return false, Check{Name: "runtime", Pass: true, Message: fmt.Sprintf("not running (socket %s)", path)}
}

// checkBridgeAddress confirms the bridge listen address can be bound.
func checkBridgeAddress(addr string) Check {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "bridge.listen", Pass: false, Message: err.Error()}
	}
	_ = listener.Close()
	return Check{Name: "bridge.listen", Pass: true, Message: fmt.Sprintf("%s is free", addr)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection confirms the default input source is usable.
func checkAudioSelection(ctx context.Context) Check {
	selection, err := audio.SelectDevice(ctx, "default")
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkBackend probes the configured gRPC speech backend.
func checkBackend(ctx context.Context, cfg config.BackendConfig) Check {
	status, err := backend.Probe(ctx, cfg.GRPC, cfg.Service, 2*time.Second)
	if err != nil {
		return Check{Name: "backend", Pass: false, Message: err.Error()}
	}
	return Check{Name: "backend", Pass: true, Message: fmt.Sprintf("%s %s in %s", status.Endpoint, status.Serving, status.Latency.Round(time.Millisecond))}
}
