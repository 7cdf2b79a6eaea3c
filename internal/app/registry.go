package app

import (
	"cmp"
	"slices"

	"github.com/dkeye/Hush/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// RoomRegistry is the in-memory room membership table. It is not safe for
// concurrent use: the Hub loop owns it and serializes every mutation.
type RoomRegistry struct {
	rooms map[domain.RoomID][]domain.Member
	where map[domain.EndpointID]domain.RoomID
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[domain.RoomID][]domain.Member),
		where: make(map[domain.EndpointID]domain.RoomID),
	}
}

func (r *RoomRegistry) Join(id domain.EndpointID, room domain.RoomID, name domain.DisplayName) []domain.Member {
	if prev, ok := r.where[id]; ok {
		if prev == room {
			r.rename(id, room, name)
			return r.Members(room)
		}
		r.Leave(id)
	}

	if _, ok := r.rooms[room]; !ok {
		log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("room created")
	}
	r.rooms[room] = append(r.rooms[room], domain.Member{ID: id, DisplayName: name, Room: room})
	r.where[id] = room
	return r.Members(room)
}

func (r *RoomRegistry) rename(id domain.EndpointID, room domain.RoomID, name domain.DisplayName) {
	members := r.rooms[room]
	if i := slices.IndexFunc(members, func(m domain.Member) bool { return m.ID == id }); i >= 0 {
		members[i].DisplayName = name
	}
}

func (r *RoomRegistry) Leave(id domain.EndpointID) (domain.RoomID, []domain.Member, bool) {
	room, ok := r.where[id]
	if !ok {
		return "", nil, false
	}
	delete(r.where, id)

	remaining := lo.Reject(r.rooms[room], func(m domain.Member, _ int) bool { return m.ID == id })
	if len(remaining) == 0 {
		delete(r.rooms, room)
		log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("room emptied, deleted")
		return room, nil, true
	}
	r.rooms[room] = remaining
	return room, slices.Clone(remaining), true
}

func (r *RoomRegistry) Destroy(room domain.RoomID) []domain.Member {
	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(r.where, m.ID)
	}
	delete(r.rooms, room)
	log.Info().Str("module", "app.registry").Str("room", string(room)).Int("members", len(members)).Msg("room destroyed")
	return members
}

func (r *RoomRegistry) RoomOf(id domain.EndpointID) (domain.RoomID, bool) {
	room, ok := r.where[id]
	return room, ok
}

func (r *RoomRegistry) MemberOf(id domain.EndpointID) (domain.Member, bool) {
	room, ok := r.where[id]
	if !ok {
		return domain.Member{}, false
	}
	return lo.Find(r.rooms[room], func(m domain.Member) bool { return m.ID == id })
}

// Members returns a copy of room's member list in join order.
func (r *RoomRegistry) Members(room domain.RoomID) []domain.Member {
	return slices.Clone(r.rooms[room])
}

func (r *RoomRegistry) List() []domain.RoomInfo {
	out := lo.MapToSlice(r.rooms, func(id domain.RoomID, members []domain.Member) domain.RoomInfo {
		return domain.RoomInfo{ID: id, MemberCount: len(members)}
	})
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
