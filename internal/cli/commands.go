package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/dkeye/Hush/internal/client/session"
)

var errQuit = errors.New("quit")

const helpText = `/call        join the call
/hangup      leave the call
/mute        toggle microphone
/camera      toggle camera
/invite      create a single-use invite link
/redeem URL  join through an invite link
/who         list members
/screenshot  tell the room you took a screenshot
/destroy     destroy the room for everyone
/leave       leave and quit`

// Exec runs one line of input: a slash command or a chat message.
func Exec(ctx context.Context, ctrl *session.Controller, con *Console, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return ctrl.SendChat(line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/call":
		return ctrl.JoinCall(ctx)
	case "/hangup":
		ctrl.EndCall()
	case "/mute":
		if ctrl.ToggleAudio() {
			con.Notice("microphone on")
		} else {
			con.Notice("microphone off")
		}
	case "/camera":
		if ctrl.ToggleVideo() {
			con.Notice("camera on")
		} else {
			con.Notice("camera off")
		}
	case "/invite":
		return ctrl.CreateInvite()
	case "/redeem":
		return ctrl.Redeem(strings.TrimSpace(arg))
	case "/who":
		con.Who(ctrl.Members(), ctrl.Peers())
	case "/screenshot":
		ctrl.Screenshot()
	case "/destroy":
		return ctrl.Destroy()
	case "/leave", "/quit":
		return errQuit
	case "/help":
		con.Notice("\n" + helpText)
	default:
		con.Notice("unknown command " + cmd + ", try /help")
	}
	return nil
}
