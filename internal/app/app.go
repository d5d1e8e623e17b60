// Package app dispatches the vaani command line and hosts the voice runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rbright/vaani/internal/audio"
	"github.com/rbright/vaani/internal/cli"
	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/config"
	"github.com/rbright/vaani/internal/doctor"
	"github.com/rbright/vaani/internal/ipc"
	"github.com/rbright/vaani/internal/logging"
	"github.com/rbright/vaani/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("vaani"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("vaani"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	logRuntime.SetVerbose(cfgLoaded.Config.Debug.Verbose)
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	if parsed.Forwarded() {
		return r.forward(ctx, parsed, cfgLoaded.Config)
	}

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	case cli.CommandCommands:
		return r.commandCommands(cfgLoaded.Config, parsed.Args)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func (r Runner) commandCommands(cfg config.Config, args []string) int {
	table, err := commands.Load(cfg.Commands.File)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	langs := table.Languages()
	if len(args) > 0 {
		lang := commands.Language(strings.TrimSpace(args[0]))
		if !table.Has(lang) {
			fmt.Fprintf(r.Stderr, "error: %v: %q (have %v)\n", commands.ErrUnknownLanguage, lang, langs)
			return 1
		}
		langs = []commands.Language{lang}
	}

	for i, lang := range langs {
		pack, _ := table.Pack(lang)
		if i > 0 {
			fmt.Fprintln(r.Stdout)
		}
		fmt.Fprintf(r.Stdout, "# %s (%s, %s)\n", lang, pack.Name, pack.Locale)
		for _, entry := range table.Entries(lang) {
			fmt.Fprintf(r.Stdout, "%-32s %s\n", entry.Phrase, entry.Action)
		}
	}
	return 0
}

// forward sends a control command to the running runtime.
func (r Runner) forward(ctx context.Context, parsed cli.Parsed, cfg config.Config) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		if parsed.Command == cli.CommandStatus {
			fmt.Fprintln(r.Stdout, "idle")
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	req := ipc.Request{Command: string(parsed.Command), Args: parsed.Args}
	resp, handled, err := ipc.Forward(ctx, socketPath, req, forwardTimeout(parsed.Command, cfg))
	if !handled {
		if parsed.Command == cli.CommandStatus {
			fmt.Fprintln(r.Stdout, "idle")
			return 0
		}
		fmt.Fprintln(r.Stderr, "error: no running vaani runtime")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if parsed.Command == cli.CommandStatus {
		state := resp.State
		if state == "" {
			state = "idle"
		}
		if resp.Language != "" {
			state += " language=" + resp.Language
		}
		fmt.Fprintln(r.Stdout, state)
	}
	if resp.Action != "" {
		fmt.Fprintf(r.Stdout, "action=%s\n", resp.Action)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// forwardTimeout bounds one IPC roundtrip by the work the runtime does for it.
func forwardTimeout(cmd cli.Command, cfg config.Config) time.Duration {
	const base = 2 * time.Second
	switch cmd {
	case cli.CommandSubmit:
		return base + time.Duration(cfg.Actions.TimeoutMS)*time.Millisecond
	case cli.CommandDictate:
		// prompt, capture, and confirmation
		return 3*base + time.Duration(cfg.Dictation.TimeoutMS)*time.Millisecond
	case cli.CommandSay, cli.CommandLanguage:
		return 2 * base
	default:
		return base
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func isAlreadyRunning(err error) bool {
	return errors.Is(err, ipc.ErrAlreadyRunning)
}

func removeSocket(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Debug("remove runtime socket", "path", path, "error", err.Error())
	}
}
