package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/rbright/vaani/internal/activity"
	"github.com/rbright/vaani/internal/backend"
	"github.com/rbright/vaani/internal/bridge"
	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/config"
	"github.com/rbright/vaani/internal/indicator"
	"github.com/rbright/vaani/internal/ipc"
	"github.com/rbright/vaani/internal/listen"
	"github.com/rbright/vaani/internal/prefs"
	"github.com/rbright/vaani/internal/session"
	"github.com/rbright/vaani/internal/speech"
	"github.com/rbright/vaani/internal/tts"
)

const backendProbeTimeout = 3 * time.Second

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if isAlreadyRunning(err) {
			fmt.Fprintln(r.Stderr, "error: vaani is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		removeSocket(socketPath)
	}()

	opts, cleanup, err := r.runtimeOptions(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("runtime setup failed", "error", err.Error())
		return 1
	}
	defer cleanup()

	srv := bridge.NewServer(bridge.Options{
		Logger:         logger.With("component", "bridge"),
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
	})
	opts.Recognizer = srv
	opts.Form = srv
	opts.OnState = srv.PublishState
	switch cfg.Speech.Backend {
	case config.SpeechBridge:
		opts.Synthesizer = srv
	case config.SpeechCommand:
		synth, err := tts.New(cfg.Speech.Command.Argv, logger.With("component", "tts"))
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		opts.Synthesizer = synth
	}

	actions := session.NewRegistry(srv)
	opts.Actions = actions
	ctrl := session.NewController(opts)
	actions.Register(commands.ActionDetailedHelp, func(ctx context.Context) error {
		return ctrl.Say(ctx, phraseSummary(opts.Table, ctrl.Language()))
	})
	srv.Attach(ctrl)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Backend.GRPC != "" {
		go probeBackend(runCtx, cfg.Backend, logger)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- ipc.Serve(runCtx, listener, ctrl, logger.With("component", "ipc")) }()
	go func() { errCh <- srv.ListenAndServe(runCtx, cfg.Bridge.Listen, cfg.Bridge.Path) }()

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(runCtx) }()

	logger.Info("runtime started",
		"socket", socketPath,
		"bridge", cfg.Bridge.Listen+cfg.Bridge.Path,
		"speech", cfg.Speech.Backend,
		"language", string(ctrl.Language()),
	)

	var failure error
	servers := 2
	select {
	case failure = <-ctrlDone:
	case failure = <-errCh:
		servers--
		cancel()
		<-ctrlDone
	}
	cancel()
	for ; servers > 0; servers-- {
		if err := <-errCh; err != nil && failure == nil {
			failure = err
		}
	}

	if failure != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", failure)
		logger.Error("runtime stopped", "error", failure.Error())
		return 1
	}
	logger.Info("runtime stopped")
	return 0
}

// runtimeOptions builds controller options from config and the stored preferences.
func (r Runner) runtimeOptions(cfg config.Config, logger *slog.Logger) (session.Options, func(), error) {
	table, err := commands.Load(cfg.Commands.File)
	if err != nil {
		return session.Options{}, nil, err
	}

	fs := afero.NewOsFs()
	defaults := prefs.Settings{
		Language:   cfg.Language,
		Volume:     cfg.Speech.Volume,
		Rate:       cfg.Speech.Rate,
		Pitch:      cfg.Speech.Pitch,
		Voice:      cfg.Speech.Voice,
		Continuous: cfg.Listening.Continuous,
	}

	prefsPath := cfg.Prefs.Path
	if prefsPath == "" {
		if prefsPath, err = prefs.DefaultPath(); err != nil {
			return session.Options{}, nil, err
		}
	}
	store, err := prefs.Open(fs, prefsPath)
	if err != nil {
		return session.Options{}, nil, err
	}
	settings, err := store.LoadSettings(defaults)
	if err != nil {
		logger.Warn("stored preferences unreadable; using config defaults", "path", prefsPath, "error", err.Error())
		settings = defaults
	}

	opts := session.Options{
		Logger:           logger.With("component", "session"),
		Table:            table,
		Store:            store,
		Policy:           policyFromConfig(cfg.Listening),
		Settings:         settings,
		ActionTimeout:    millis(cfg.Actions.TimeoutMS),
		DictationTimeout: millis(cfg.Dictation.TimeoutMS),
		AnnounceReady:    cfg.Speech.AnnounceReady && cfg.Speech.Backend != config.SpeechNone,
	}
	if cfg.Indicator.Enable {
		opts.Indicator = indicator.New(cfg.Indicator, logger.With("component", "indicator"))
	}

	cleanup := func() {}
	if cfg.Activity.Enable {
		path := cfg.Activity.Path
		if path == "" {
			if path, err = activity.DefaultPath(); err != nil {
				return session.Options{}, nil, err
			}
		}
		activityLog, err := activity.Open(fs, path, cfg.Activity.Buffer, logger.With("component", "activity"))
		if err != nil {
			return session.Options{}, nil, err
		}
		opts.Activity = activityLog
		cleanup = func() {
			if err := activityLog.Close(); err != nil {
				logger.Warn("close activity log", "error", err.Error())
			}
		}
	}
	return opts, cleanup, nil
}

func policyFromConfig(cfg config.ListeningConfig) listen.Policy {
	return listen.Policy{
		Continuous:      cfg.Continuous,
		NaturalEndDelay: millis(cfg.NaturalEndDelayMS),
		NoSpeechDelay:   millis(cfg.NoSpeechDelayMS),
		ErrorDelay:      millis(cfg.ErrorDelayMS),
		MaxErrorDelay:   millis(cfg.MaxErrorDelayMS),
		ResumeDelay:     millis(cfg.ResumeDelayMS),
	}
}

func probeBackend(ctx context.Context, cfg config.BackendConfig, logger *slog.Logger) {
	status, err := backend.Probe(ctx, cfg.GRPC, cfg.Service, backendProbeTimeout)
	if err != nil {
		logger.Warn("speech backend unreachable", "endpoint", cfg.GRPC, "error", err.Error())
		return
	}
	logger.Info("speech backend ready",
		"endpoint", status.Endpoint,
		"serving", status.Serving,
		"latency_ms", status.Latency.Milliseconds(),
	)
}

// phraseSummary lists one phrase per action for the language, in table order.
func phraseSummary(table *commands.Table, lang commands.Language) string {
	seen := make(map[commands.ActionID]struct{})
	phrases := make([]string, 0, 16)
	for _, entry := range table.Entries(lang) {
		if _, ok := seen[entry.Action]; ok {
			continue
		}
		seen[entry.Action] = struct{}{}
		phrases = append(phrases, entry.Phrase)
	}
	return strings.Join(phrases, ", ")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

var _ speech.Synthesizer = (*tts.Command)(nil)
