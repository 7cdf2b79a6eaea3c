package session

import (
	"errors"
	"net/url"
	"strings"

	"github.com/dkeye/Hush/internal/domain"
)

var ErrBadInvite = errors.New("not an invite link")

// Invite is what a fragment-only invite link carries. Token links are
// resolved through the server; legacy links name the room directly.
type Invite struct {
	Token domain.TokenID
	Room  domain.RoomID
	Key   string
}

// BuildInviteLink renders base#token=<id>&key=<password>. The fragment is
// never sent to the server by a browser.
func BuildInviteLink(base string, token domain.TokenID, key string) string {
	base, _, _ = strings.Cut(base, "#")
	return base + "#token=" + url.QueryEscape(string(token)) + "&key=" + url.QueryEscape(key)
}

// ParseInviteLink accepts a full URL or a bare fragment in either the
// token form or the legacy #room=<id>&key=<password> form.
func ParseInviteLink(raw string) (Invite, error) {
	raw = strings.TrimSpace(raw)
	_, frag, ok := strings.Cut(raw, "#")
	if !ok {
		return Invite{}, ErrBadInvite
	}
	q, err := url.ParseQuery(frag)
	if err != nil {
		return Invite{}, ErrBadInvite
	}

	inv := Invite{
		Token: domain.TokenID(q.Get("token")),
		Room:  domain.RoomID(q.Get("room")),
		Key:   q.Get("key"),
	}
	if inv.Key == "" || (inv.Token == "" && inv.Room == "") {
		return Invite{}, ErrBadInvite
	}
	return inv, nil
}
