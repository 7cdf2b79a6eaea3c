package session

import (
	"errors"
	"slices"

	"github.com/dkeye/Hush/internal/client/mesh"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/e2e"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Handle applies one message from the server. It is meant to be called
// from a single receive loop.
func (c *Controller) Handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Connected:
		c.mu.Lock()
		c.self = m.ID
		c.mu.Unlock()
	case protocol.RoomUsers:
		c.onRoomUsers(m)
	case protocol.UserJoined:
		c.onUserJoined(m)
	case protocol.UserLeft:
		c.onUserLeft(m.ID)
	case protocol.RoomDestroyed:
		c.teardown()
		c.cfg.View.RoomDestroyed()
		c.cfg.View.Alert(AlertRoomDestroyed)
	case protocol.Signal:
		c.onSignal(m)
	case protocol.EncryptedChat:
		c.onChat(m)
	case protocol.InviteTokenCreated:
		c.onInviteCreated(m)
	case protocol.InviteTokenValid:
		c.mu.Lock()
		key := c.redeemKey
		c.redeemKey = ""
		c.mu.Unlock()
		c.cfg.View.InviteResolved(m.RoomID, key)
	case protocol.InviteTokenInvalid:
		c.mu.Lock()
		c.redeemKey = ""
		c.mu.Unlock()
		c.cfg.View.Alert(AlertInviteInvalid)
	case protocol.ScreenshotAlert:
		name := string(m.DisplayName)
		if name == "" {
			name = someoneName
		}
		c.cfg.View.Notice(name + " took a screenshot!")
	case protocol.Error:
		log.Warn().Str("module", "session").Str("code", m.Code).Msg(m.Message)
		c.cfg.View.Notice("server: " + m.Message)
	default:
		log.Warn().Str("module", "session").Str("event", string(msg.Event())).Msg("unexpected event from server")
	}
}

func (c *Controller) onRoomUsers(m protocol.RoomUsers) {
	c.mu.Lock()
	c.members = lo.Map(m.Users, func(u protocol.User, _ int) Member {
		return Member{ID: u.ID, Name: u.DisplayName, Self: u.ID == c.self}
	})
	members := append([]Member(nil), c.members...)
	c.mu.Unlock()
	c.cfg.View.Members(members)
}

func (c *Controller) onUserJoined(m protocol.UserJoined) {
	c.mu.Lock()
	if i := slices.IndexFunc(c.members, func(x Member) bool { return x.ID == m.ID }); i >= 0 {
		c.members[i].Name = m.DisplayName
	} else {
		c.members = append(c.members, Member{ID: m.ID, Name: m.DisplayName, Self: m.ID == c.self})
	}
	members := append([]Member(nil), c.members...)
	c.mu.Unlock()
	c.cfg.View.Members(members)
}

func (c *Controller) onUserLeft(id domain.EndpointID) {
	c.mu.Lock()
	c.members = lo.Reject(c.members, func(x Member, _ int) bool { return x.ID == id })
	members := append([]Member(nil), c.members...)
	call := c.call
	c.mu.Unlock()

	if call != nil {
		call.Close(id)
	}
	c.cfg.View.Members(members)
}

func (c *Controller) onSignal(m protocol.Signal) {
	c.mu.Lock()
	call := c.call
	c.mu.Unlock()
	if call == nil {
		return
	}
	if err := call.HandleSignal(m.Sender, m.Type, m.Payload); err != nil && !errors.Is(err, mesh.ErrClosed) {
		log.Warn().Err(err).Str("module", "session").Str("peer", string(m.Sender)).Msg("signal")
	}
}

func (c *Controller) onChat(m protocol.EncryptedChat) {
	c.mu.Lock()
	key := c.key
	c.mu.Unlock()
	if key == nil {
		return
	}

	line := ChatLine{From: m.Sender, Name: string(m.DisplayName), At: c.cfg.Now()}
	if line.Name == "" {
		line.Name = anonymousName
	}
	plain, err := e2e.Open(key, m.Payload.Nonce, m.Payload.Ciphertext)
	if err != nil {
		line.Failed = true
		line.Segments = []Segment{{Text: e2e.Placeholder}}
	} else {
		line.Segments = Linkify(string(plain))
	}
	c.cfg.View.Chat(line)
}

func (c *Controller) onInviteCreated(m protocol.InviteTokenCreated) {
	c.mu.Lock()
	password := c.password
	c.mu.Unlock()
	if password == "" {
		return
	}
	c.cfg.View.InviteLink(BuildInviteLink(c.cfg.InviteBase, m.TokenID, password))
}
