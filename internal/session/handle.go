package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/ipc"
)

// Handle serves IPC commands for the running runtime.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	arg := strings.TrimSpace(strings.Join(req.Args, " "))

	switch req.Command {
	case "status":
		s := c.Status()
		return ipc.Response{
			OK:       true,
			State:    string(s.State),
			Language: string(s.Language),
			Message: fmt.Sprintf("listening=%s restart_pending=%t speaking=%t ambient=%t continuous=%t volume=%.1f",
				s.Listening, s.RestartPending, s.Speaking, s.Ambient, s.Continuous, s.Settings.Volume),
		}
	case "resume":
		return c.respond(c.Resume(ctx), "listening resumed")
	case "pause":
		return c.respond(c.Pause(ctx), "listening paused")
	case "submit":
		if arg == "" {
			return c.respond(fmt.Errorf("submit requires text"), "")
		}
		outcome, err := c.Submit(ctx, arg)
		resp := c.respond(err, "command not recognized")
		if err == nil && outcome.Recognized {
			resp.Action = string(outcome.Action)
			resp.Message = fmt.Sprintf("matched %q", outcome.Phrase)
		}
		return resp
	case "say":
		if arg == "" {
			return c.respond(fmt.Errorf("say requires text"), "")
		}
		return c.respond(c.Say(ctx, arg), "speaking")
	case "dictate":
		if arg == "" {
			return c.respond(fmt.Errorf("dictate requires a field id"), "")
		}
		result, err := c.Dictate(ctx, arg)
		return c.respond(err, fmt.Sprintf("%s=%q", result.Field, result.Value))
	case "language":
		if arg == "" {
			return c.respond(fmt.Errorf("language requires a tag"), "")
		}
		return c.respond(c.SetLanguage(ctx, commands.Language(arg)), "language set")
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) respond(err error, message string) ipc.Response {
	resp := ipc.Response{State: string(c.State()), Language: string(c.Language())}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	resp.Message = message
	return resp
}
