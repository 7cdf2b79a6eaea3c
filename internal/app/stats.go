package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type Stats struct {
	Rooms     int `json:"rooms"`
	Members   int `json:"members"`
	Endpoints int `json:"endpoints"`
	Tokens    int `json:"tokens"`
}

func (h *Hub) snapshot() Stats {
	st := Stats{Endpoints: h.relay.Len(), Tokens: h.tokens.Len()}
	for _, info := range h.rooms.List() {
		st.Rooms++
		st.Members += info.MemberCount
	}
	return st
}

// Stats reads occupancy counters through the hub loop.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := h.do(ctx, func() { st = h.snapshot() })
	return st, err
}

// Housekeeping prunes idle rate-limit windows and returns current stats.
func (h *Hub) Housekeeping(ctx context.Context) (Stats, int, error) {
	var (
		st     Stats
		pruned int
	)
	err := h.do(ctx, func() {
		pruned = h.limiter.Prune()
		st = h.snapshot()
	})
	return st, pruned, err
}

// StartReporter schedules the occupancy report. The caller stops the
// returned cron on shutdown.
func StartReporter(ctx context.Context, hub *Hub, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		st, pruned, err := hub.Housekeeping(ctx)
		if err != nil {
			log.Debug().Str("module", "app.stats").Err(err).Msg("housekeeping skipped")
			return
		}
		log.Info().Str("module", "app.stats").
			Int("rooms", st.Rooms).
			Int("members", st.Members).
			Int("endpoints", st.Endpoints).
			Int("tokens", st.Tokens).
			Int("limiter_pruned", pruned).
			Msg("occupancy")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
