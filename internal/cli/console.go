package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dkeye/Hush/internal/client/mesh"
	"github.com/dkeye/Hush/internal/client/session"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	nameColor   = color.New(color.FgCyan, color.Bold)
	ownColor    = color.New(color.FgGreen, color.Bold)
	linkColor   = color.New(color.FgBlue, color.Underline)
	failColor   = color.New(color.FgHiBlack, color.Italic)
	noticeColor = color.New(color.FgYellow)
	alertColor  = color.New(color.FgRed, color.Bold)
	callColor   = color.New(color.FgMagenta)
)

// Console renders a session to a terminal.
type Console struct {
	out io.Writer

	mu        sync.Mutex
	members   []session.Member
	onInvite  func(room domain.RoomID, password string)
	destroyed chan struct{}
	once      sync.Once
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out, destroyed: make(chan struct{})}
}

// OnInvite is called when an invite link has resolved to a room.
func (c *Console) OnInvite(fn func(room domain.RoomID, password string)) {
	c.mu.Lock()
	c.onInvite = fn
	c.mu.Unlock()
}

// Destroyed is closed once the room is destroyed.
func (c *Console) Destroyed() <-chan struct{} { return c.destroyed }

func (c *Console) println(p *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) AddPeerMedia(remote domain.EndpointID, track mesh.RemoteTrack) {
	c.println(callColor, "[call] receiving %s from %s", track.Kind(), c.nameOf(remote))
}

func (c *Console) RemovePeerMedia(remote domain.EndpointID) {
	c.println(callColor, "[call] %s left the call", c.nameOf(remote))
}

func (c *Console) Members(members []session.Member) {
	c.mu.Lock()
	c.members = members
	c.mu.Unlock()
	c.println(noticeColor, "%d in the room", len(members))
}

func (c *Console) Chat(line session.ChatLine) {
	var b strings.Builder
	b.WriteString(line.At.Format("15:04") + " ")
	if line.Own {
		b.WriteString(ownColor.Sprint(line.Name))
	} else {
		b.WriteString(nameColor.Sprint(line.Name))
	}
	b.WriteString(": ")
	for _, seg := range line.Segments {
		switch {
		case line.Failed:
			b.WriteString(failColor.Sprint(seg.Text))
		case seg.Link:
			b.WriteString(linkColor.Sprint(seg.Text))
		default:
			b.WriteString(seg.Text)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, b.String())
}

func (c *Console) Notice(text string) { c.println(noticeColor, "* %s", text) }

func (c *Console) Alert(text string) { c.println(alertColor, "! %s", text) }

func (c *Console) InviteLink(link string) {
	c.println(ownColor, "invite (single use): %s", link)
}

func (c *Console) InviteResolved(room domain.RoomID, password string) {
	c.mu.Lock()
	fn := c.onInvite
	c.mu.Unlock()
	if fn != nil {
		fn(room, password)
	}
}

func (c *Console) RoomDestroyed() {
	c.once.Do(func() { close(c.destroyed) })
}

func (c *Console) nameOf(id domain.EndpointID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.members {
		if m.ID == id {
			return string(m.Name)
		}
	}
	return string(id)
}

// Who renders the member list with each member's call link, if any.
func (c *Console) Who(members []session.Member, peers []mesh.PeerInfo) {
	byID := make(map[domain.EndpointID]mesh.PeerInfo, len(peers))
	for _, p := range peers {
		byID[p.Remote] = p
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "ID", "Call"})
	for i, m := range members {
		call := "-"
		switch p, ok := byID[m.ID]; {
		case m.Self:
			call = "you"
		case ok:
			call = fmt.Sprintf("%s (%s, %d tracks)", p.State, p.Role, p.Tracks)
		}
		t.AppendRow(table.Row{i + 1, string(m.Name), string(m.ID), call})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, t.Render())
}
