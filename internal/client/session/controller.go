// Package session is the client-side state holder: room membership, the
// derived chat key, the call and the invite flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dkeye/Hush/internal/client/mesh"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/e2e"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const MinPasswordLen = 6

const (
	AlertInviteInvalid = "This invite link has expired or already been used."
	AlertRoomDestroyed = "This room has been destroyed by a user. All data is gone."

	NoticeOwnScreenshot = "You took a screenshot!"

	ownName       = "You"
	anonymousName = "Anonymous"
	someoneName   = "Someone"
)

var (
	ErrMissingFields    = errors.New("room, name and password are required")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrSetup            = errors.New("session setup failed")
	ErrNotJoined        = errors.New("not in a room")
)

// Sender is the relay connection.
type Sender interface {
	mesh.Signaler
	Send(msg protocol.Message) error
}

type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Toggle(kind webrtc.RTPCodecType) bool
	Close()
}

type View interface {
	mesh.View
	Members(members []Member)
	Chat(line ChatLine)
	Notice(text string)
	Alert(text string)
	InviteLink(link string)
	InviteResolved(room domain.RoomID, password string)
	RoomDestroyed()
}

type Member struct {
	ID   domain.EndpointID
	Name domain.DisplayName
	Self bool
}

type ChatLine struct {
	From     domain.EndpointID
	Name     string
	Segments []Segment
	Own      bool
	Failed   bool
	At       time.Time
}

type Config struct {
	Sender     Sender
	View       View
	OpenMedia  func(ctx context.Context) (LocalMedia, error)
	Transports func(tracks []webrtc.TrackLocal) (mesh.TransportFactory, error)
	InviteBase string
	Now        func() time.Time
}

type Controller struct {
	cfg Config

	mu       sync.Mutex
	self     domain.EndpointID
	room     domain.RoomID
	name     domain.DisplayName
	password string
	key      *e2e.Key
	members  []Member

	call  *mesh.Orchestrator
	media LocalMedia

	redeemKey string
}

func New(cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{cfg: cfg}
}

// Join validates input, derives the room key and asks to join. A wrong
// password is not detected here; it shows up as unreadable messages.
func (c *Controller) Join(room, name, password string) error {
	room, name = strings.TrimSpace(room), strings.TrimSpace(name)
	if room == "" || name == "" || password == "" {
		return ErrMissingFields
	}
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	roomID, err := domain.ParseRoomID(room)
	if err != nil {
		return err
	}
	display, err := domain.ParseDisplayName(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	joined := c.room != ""
	c.mu.Unlock()
	if joined {
		c.Leave()
	}

	key := e2e.DeriveKey(password, string(roomID))

	c.mu.Lock()
	c.room, c.name, c.password, c.key = roomID, display, password, &key
	c.mu.Unlock()

	if err := c.cfg.Sender.Send(protocol.JoinRoom{RoomID: string(roomID), DisplayName: string(display)}); err != nil {
		c.teardown()
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}
	log.Info().Str("module", "session").Str("room", string(roomID)).Msg("joining room")
	return nil
}

// Leave ends the call, forgets the key and tells the server.
func (c *Controller) Leave() {
	c.mu.Lock()
	joined := c.room != ""
	c.mu.Unlock()
	if !joined {
		return
	}
	if err := c.cfg.Sender.Send(protocol.LeaveRoom{}); err != nil {
		log.Debug().Err(err).Str("module", "session").Msg("send leave")
	}
	c.teardown()
}

// Destroy asks the server to tear the room down for everyone.
func (c *Controller) Destroy() error {
	if !c.Joined() {
		return ErrNotJoined
	}
	return c.cfg.Sender.Send(protocol.DestroyRoom{})
}

func (c *Controller) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room != ""
}

func (c *Controller) Self() domain.EndpointID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Controller) Room() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Controller) Members() []Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Member(nil), c.members...)
}

func (c *Controller) teardown() {
	c.EndCall()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil {
		c.key.Wipe()
		c.key = nil
	}
	c.room, c.name, c.password = "", "", ""
	c.members = nil
	c.redeemKey = ""
}

// SendChat encrypts text and sends it; the local echo is shown as "You".
func (c *Controller) SendChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	c.mu.Lock()
	key, self := c.key, c.self
	c.mu.Unlock()
	if key == nil {
		return ErrNotJoined
	}

	nonce, ct, err := e2e.Seal(key, []byte(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}
	if err := c.cfg.Sender.Send(protocol.EncryptedChat{Payload: protocol.Sealed{Nonce: nonce, Ciphertext: ct}}); err != nil {
		return err
	}
	c.cfg.View.Chat(ChatLine{From: self, Name: ownName, Segments: Linkify(text), Own: true, At: c.cfg.Now()})
	return nil
}

// JoinCall opens local media and offers to every other member. Members
// joining later start their own offers when they join the call.
func (c *Controller) JoinCall(ctx context.Context) error {
	c.mu.Lock()
	if c.room == "" {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if c.call != nil {
		c.mu.Unlock()
		return nil
	}
	self := c.self
	c.mu.Unlock()

	media, err := c.cfg.OpenMedia(ctx)
	if err != nil {
		err = fmt.Errorf("%w: local media: %v", ErrSetup, err)
		c.cfg.View.Alert(err.Error())
		return err
	}
	factory, err := c.cfg.Transports(media.Tracks())
	if err != nil {
		media.Close()
		err = fmt.Errorf("%w: transport: %v", ErrSetup, err)
		c.cfg.View.Alert(err.Error())
		return err
	}
	call := mesh.New(self, c.cfg.Sender, c.cfg.View, factory)

	c.mu.Lock()
	if c.call != nil || c.room == "" {
		c.mu.Unlock()
		media.Close()
		return nil
	}
	c.call, c.media = call, media
	others := lo.Filter(c.members, func(m Member, _ int) bool { return !m.Self })
	c.mu.Unlock()

	for _, m := range others {
		if err := call.Initiate(m.ID); err != nil {
			log.Warn().Err(err).Str("module", "session").Str("peer", string(m.ID)).Msg("initiate")
		}
	}
	log.Info().Str("module", "session").Int("peers", len(others)).Msg("joined call")
	return nil
}

// EndCall releases every peer link and the local tracks before returning.
func (c *Controller) EndCall() {
	c.mu.Lock()
	call, media := c.call, c.media
	c.call, c.media = nil, nil
	c.mu.Unlock()

	if call != nil {
		call.CloseAll()
	}
	if media != nil {
		media.Close()
	}
}

func (c *Controller) InCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call != nil
}

func (c *Controller) Peers() []mesh.PeerInfo {
	c.mu.Lock()
	call := c.call
	c.mu.Unlock()
	if call == nil {
		return nil
	}
	return call.Peers()
}

// ToggleAudio flips the microphone for every link and returns the new state.
func (c *Controller) ToggleAudio() bool { return c.toggle(webrtc.RTPCodecTypeAudio) }

func (c *Controller) ToggleVideo() bool { return c.toggle(webrtc.RTPCodecTypeVideo) }

func (c *Controller) toggle(kind webrtc.RTPCodecType) bool {
	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media == nil {
		return false
	}
	return media.Toggle(kind)
}

// CreateInvite requests a single-use token; the link arrives via View.InviteLink.
func (c *Controller) CreateInvite() error {
	room := c.Room()
	if room == "" {
		return ErrNotJoined
	}
	return c.cfg.Sender.Send(protocol.CreateInviteToken{RoomID: string(room)})
}

// Redeem resolves an invite link. Legacy links resolve locally; token
// links are answered by the server.
func (c *Controller) Redeem(link string) error {
	inv, err := ParseInviteLink(link)
	if err != nil {
		return err
	}
	if inv.Token == "" {
		c.cfg.View.InviteResolved(inv.Room, inv.Key)
		return nil
	}
	c.mu.Lock()
	c.redeemKey = inv.Key
	c.mu.Unlock()
	return c.cfg.Sender.Send(protocol.RedeemInviteToken{TokenID: string(inv.Token)})
}

// Screenshot reports a local screenshot to the room.
func (c *Controller) Screenshot() {
	c.cfg.View.Notice(NoticeOwnScreenshot)
	if c.Joined() {
		if err := c.cfg.Sender.Send(protocol.ScreenshotDetected{}); err != nil {
			log.Debug().Err(err).Str("module", "session").Msg("send screenshot")
		}
	}
}
